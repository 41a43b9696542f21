package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ValentinKolb/roc/cmd/util"
	"github.com/ValentinKolb/roc/lib/admin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// AdminCommands sends operator commands to the admin endpoint of a server
	AdminCommands = &cobra.Command{
		Use:   "admin",
		Short: "Control a running roc server",
		Long:  `Control a running roc server through its admin HTTP endpoint (see serve --admin-endpoint).`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return util.BindCommandFlags(cmd)
		},
	}

	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Prints the health information of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := request(http.MethodGet, "/healthz")
			if err != nil {
				return err
			}
			var out bytes.Buffer
			if err := json.Indent(&out, body, "", "  "); err != nil {
				return err
			}
			fmt.Println(out.String())
			return nil
		},
	}
)

func init() {
	key := "admin-endpoint"
	AdminCommands.PersistentFlags().String(key, "127.0.0.1:9880", util.WrapString("Address of the admin HTTP server"))

	key = "timeout"
	AdminCommands.PersistentFlags().Int(key, 10, util.WrapString("The timeout in seconds of the request"))

	for _, kind := range []admin.Kind{admin.KindShutdown, admin.KindCrash, admin.KindClearLog, admin.KindSnapshot} {
		AdminCommands.AddCommand(newKindCmd(kind))
	}
	AdminCommands.AddCommand(healthCmd)
}

var kindDescriptions = map[admin.Kind]string{
	admin.KindShutdown: "Gracefully stops the server, the checkpoint is marked clean",
	admin.KindCrash:    "Terminates the server without a snapshot, the next start replays the log",
	admin.KindClearLog: "Writes a snapshot and truncates the write-ahead log",
	admin.KindSnapshot: "Writes a snapshot",
}

func newKindCmd(kind admin.Kind) *cobra.Command {
	return &cobra.Command{
		Use:   kind.String(),
		Short: kindDescriptions[kind],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := request(http.MethodPost, "/admin/"+kind.String()); err != nil {
				return err
			}
			fmt.Printf("%s: ok\n", kind)
			return nil
		},
	}
}

// request sends a request to the admin endpoint and returns the body of a 200 response
func request(method, path string) ([]byte, error) {
	endpoint := viper.GetString("admin-endpoint")
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}

	req, err := http.NewRequest(method, strings.TrimSuffix(endpoint, "/")+path, nil)
	if err != nil {
		return nil, err
	}

	c := &http.Client{Timeout: time.Duration(viper.GetInt("timeout")) * time.Second}
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("admin request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var msg struct{ Err string }
		if json.Unmarshal(body, &msg) == nil && msg.Err != "" {
			return nil, fmt.Errorf("%s %s: %s", method, path, msg.Err)
		}
		return nil, fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return body, nil
}
