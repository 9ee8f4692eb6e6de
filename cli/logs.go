package cli

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	logsAudit bool
	logsLines int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the backend output log or the credential audit trail",
	Long: `Print the last lines of the backend output captured by 'echoshell run'.

Examples:
  echoshell logs              # last 100 lines of backend output
  echoshell logs --lines 20
  echoshell logs --audit      # credential audit events`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVar(&logsAudit, "audit", false, "Show the credential audit trail")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 100, "Number of lines to show")
}

func runLogs(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadShell()
	if err != nil {
		return err
	}
	path := cfg.Backend.LogFile
	if logsAudit {
		path = cfg.Vault.AuditLog
	}

	lines, err := tailFile(path, logsLines)
	if os.IsNotExist(err) {
		printInfo(fmt.Sprintf("No log yet at %s", path))
		return nil
	}
	if err != nil {
		return err
	}
	for _, l := range lines {
		fmt.Println(l)
	}
	return nil
}

// tailFile returns the last n lines of path.
func tailFile(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ring []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		ring = append(ring, sc.Text())
		if n > 0 && len(ring) > n {
			ring = ring[1:]
		}
	}
	return ring, sc.Err()
}
