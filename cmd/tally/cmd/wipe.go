package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var wipeForce bool

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete the statistics cache",
	Long:  "Removes the cache database. The next run rebuilds it from the log files.",
	RunE:  runWipe,
}

func init() {
	wipeCmd.Flags().BoolVar(&wipeForce, "force", false, "Skip confirmation prompt")
}

func runWipe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.Cache.Path); os.IsNotExist(err) {
		fmt.Println("no cache to wipe")
		return nil
	}

	if !wipeForce {
		fmt.Printf("This will delete %s. Continue? [y/N] ", cfg.Cache.Path)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("cancelled")
			return nil
		}
	}

	if err := os.Remove(cfg.Cache.Path); err != nil {
		return err
	}
	fmt.Println("cache wiped")
	return nil
}
