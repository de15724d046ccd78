package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l54808821/swarmpool/internal/database"
)

var (
	seedFile   string
	seedAgents int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load tasks into the pool and open a session",
	Long: `Reads task descriptions (one per line, blank lines and #-comments
skipped) and inserts them as pending tasks with sequential ids, so claim
order follows file order. Opens a session if none is active.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "file with one task description per line (default stdin)")
	seedCmd.Flags().IntVar(&seedAgents, "agents", 4, "expected agent count recorded on the session")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	descriptions, err := readDescriptions(seedFile)
	if err != nil {
		return err
	}
	if len(descriptions) == 0 {
		return fmt.Errorf("no task descriptions to seed")
	}

	coord, db, err := openCoordinator(cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	ctx := context.Background()
	session, err := coord.OpenSession(ctx, seedAgents)
	if err != nil {
		return err
	}

	tasks, err := coord.SeedTasks(ctx, descriptions)
	if err != nil {
		return err
	}

	fmt.Printf("seeded %d tasks into session %s\n", len(tasks), session.ID)
	return nil
}

func readDescriptions(path string) ([]string, error) {
	in := os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		in = f
	}

	var descriptions []string
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		descriptions = append(descriptions, line)
	}
	return descriptions, scanner.Err()
}
