package kv

import (
	"fmt"
	"strconv"

	"github.com/ValentinKolb/roc/lib/command"
	"github.com/spf13/cobra"
)

var (
	hiCmd = &cobra.Command{
		Use:   "hi",
		Short: "Prints the user id of this client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("user_id=%s\n", userID)
			return nil
		},
	}
	pingCmd = &cobra.Command{
		Use:   "ping",
		Short: "Checks that the user's session is alive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if resp, err := rpcStore.Ping(userID); err != nil {
				return err
			} else {
				fmt.Println(resp)
			}
			return nil
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value, err := parseValue(args[1])
			if err != nil {
				return err
			}
			if err := rpcStore.Set(userID, key, value); err != nil {
				return err
			} else {
				fmt.Println("set successfully")
			}
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if resp, ok, err := rpcStore.Get(userID, key); err != nil {
				return err
			} else if ok {
				fmt.Printf("key=%s, found=true, value=%d\n", key, resp)
			} else {
				fmt.Printf("key=%s, found=false\n", key)
			}
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := rpcStore.Delete(userID, key); err != nil {
				return err
			} else {
				fmt.Println("delete successfully")
			}
			return nil
		},
	}
	updateCmd = &cobra.Command{
		Use:   "update [key] [value]",
		Short: "Updates the value for a key (same as set)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value, err := parseValue(args[1])
			if err != nil {
				return err
			}
			if err := rpcStore.Update(userID, key, value); err != nil {
				return err
			} else {
				fmt.Println("update successfully")
			}
			return nil
		},
	}
	rangeCmd = &cobra.Command{
		Use:   "range [start] [end]",
		Short: "Lists the entries with start <= key <= end",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := rpcStore.Range(userID, args[0], args[1])
			if err != nil {
				return err
			}
			printEntries(entries)
			return nil
		},
	}
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists all entries of the user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := rpcStore.List(userID)
			if err != nil {
				return err
			}
			printEntries(entries)
			return nil
		},
	}
	exitCmd = &cobra.Command{
		Use:   "exit",
		Short: "Tells the server that this client leaves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcStore.Exit(userID); err != nil {
				return err
			} else {
				fmt.Println("bye")
			}
			return nil
		},
	}
)

// parseValue parses a value argument, values are unsigned 64 bit integers
func parseValue(s string) (uint64, error) {
	value, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("value must be an unsigned integer: %w", err)
	}
	return value, nil
}

func printEntries(entries []command.Entry) {
	for _, e := range entries {
		fmt.Printf("%s=%d\n", e.Key, e.Value)
	}
	fmt.Printf("(%d entries)\n", len(entries))
}
