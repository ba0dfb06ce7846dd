package cli

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	discoverServerAddr string
	discoverNamespaces []string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Print a running server's discovery documents",
	Long: `Fetches the namespace catalogue (or, with --namespace, a
namespace-filtered types document) from a running lootbox server's HTTP
surface and prints it.`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().StringVar(&discoverServerAddr, "server", "127.0.0.1:7337", "lootbox server host:port")
	discoverCmd.Flags().StringArrayVar(&discoverNamespaces, "namespace", nil, "restrict the types document to these namespaces (repeatable)")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	path := "/namespaces"
	if len(discoverNamespaces) > 0 {
		path = "/types/"
		for i, ns := range discoverNamespaces {
			if i > 0 {
				path += ","
			}
			path += ns
		}
	}

	url := fmt.Sprintf("http://%s%s", discoverServerAddr, path)
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s for %s", resp.Status, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fmt.Print(string(body))
	return nil
}
