package shell

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ValentinKolb/roc/cmd/util"
	"github.com/ValentinKolb/roc/lib/command"
	"github.com/ValentinKolb/roc/lib/store"
	"github.com/ValentinKolb/roc/rpc/client"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	prompt      = "roc> "
	historyFile = "history"
)

var (
	// ShellCmd starts an interactive client session
	ShellCmd = &cobra.Command{
		Use:   "shell",
		Short: "Interactive client session",
		Long: `Starts an interactive client session. The user id is read from the user id file
(default ~/.roc_client/user_id.crd) and created on first use, so a restarted shell sees
its data again. Commands: PING, SET k v, GET k, DEL k, UPDATE k v, RANGE a b, LIST, EXIT.`,
		Args: cobra.NoArgs,
		RunE: run,
	}

	errUsage = errors.New("usage")
)

func init() {
	util.SetupRPCClientFlags(ShellCmd)

	key := "test-mode"
	ShellCmd.PersistentFlags().Bool(key, false, util.WrapString("Always request a fresh user id and never touch the user id file"))
}

func run(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	config, s, t, err := util.ConnectStore()
	if err != nil {
		return err
	}
	defer t.Close()

	userID, err := client.LoadOrCreateUserID(s, config.UserIDFile, viper.GetBool("test-mode"))
	if err != nil {
		return err
	}

	// the history lives next to the user id file
	if err := os.MkdirAll(filepath.Dir(config.UserIDFile), 0o700); err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       filepath.Join(filepath.Dir(config.UserIDFile), historyFile),
		AutoComplete:      completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintf(rl.Stdout(), "connected as %s (type HELP for a list of commands)\n", userID)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			// Ctrl+D leaves like EXIT
			_, _, err = Execute(s, userID, "EXIT")
			return err
		}
		if err != nil {
			return err
		}

		out, quit, err := Execute(s, userID, line)
		switch {
		case errors.Is(err, errUsage):
			fmt.Fprintln(rl.Stderr(), err)
		case err != nil:
			fmt.Fprintf(rl.Stderr(), "error: %v\n", err)
		case out != "":
			fmt.Fprintln(rl.Stdout(), out)
		}
		if quit {
			return nil
		}
	}
}

// Execute runs one shell line for userID and returns the text to print.
// quit is true after EXIT.
func Execute(s store.IStore, userID, line string) (out string, quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false, nil
	}

	name, args := strings.ToUpper(fields[0]), fields[1:]
	spec, ok := shellCommands[name]
	if !ok {
		return "", false, fmt.Errorf("%w: unknown command %q (type HELP)", errUsage, fields[0])
	}
	if len(args) != spec.args {
		return "", false, fmt.Errorf("%w: %s", errUsage, spec.usage)
	}

	switch name {
	case "HELP":
		return help(), false, nil
	case "PING":
		out, err = s.Ping(userID)
		return out, false, err
	case "SET", "UPDATE":
		value, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return "", false, fmt.Errorf("%w: value must be an unsigned integer", errUsage)
		}
		if name == "SET" {
			err = s.Set(userID, args[0], value)
		} else {
			err = s.Update(userID, args[0], value)
		}
		return "OK", false, err
	case "GET":
		value, found, err := s.Get(userID, args[0])
		if err != nil || !found {
			return "(nil)", false, err
		}
		return strconv.FormatUint(value, 10), false, nil
	case "DEL":
		return "OK", false, s.Delete(userID, args[0])
	case "RANGE":
		entries, err := s.Range(userID, args[0], args[1])
		return formatEntries(entries), false, err
	case "LIST":
		entries, err := s.List(userID)
		return formatEntries(entries), false, err
	case "EXIT":
		return "bye", true, s.Exit(userID)
	}
	return "", false, nil
}

type shellCommand struct {
	args  int
	usage string
}

var shellCommands = map[string]shellCommand{
	"HELP":   {0, "HELP"},
	"PING":   {0, "PING"},
	"SET":    {2, "SET <key> <value>"},
	"GET":    {1, "GET <key>"},
	"DEL":    {1, "DEL <key>"},
	"UPDATE": {2, "UPDATE <key> <value>"},
	"RANGE":  {2, "RANGE <start> <end>"},
	"LIST":   {0, "LIST"},
	"EXIT":   {0, "EXIT"},
}

var shellOrder = []string{"PING", "SET", "GET", "DEL", "UPDATE", "RANGE", "LIST", "EXIT", "HELP"}

func help() string {
	var sb strings.Builder
	for i, name := range shellOrder {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("  " + shellCommands[name].usage)
	}
	return sb.String()
}

func completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(shellOrder))
	for _, name := range shellOrder {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

func formatEntries(entries []command.Entry) string {
	if len(entries) == 0 {
		return "(empty)"
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("%s = %d", e.Key, e.Value)
	}
	return strings.Join(lines, "\n")
}
