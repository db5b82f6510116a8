package cache

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Stores the value for a key and prints the previous value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prev, err := rpcCache.Put(args[0], []byte(args[1]), viper.GetDuration("lifespan"))
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, previous=%s\n", args[0], printable(prev))
			return nil
		},
	}
	putIfAbsentCmd = &cobra.Command{
		Use:   "put-if-absent [key] [value]",
		Short: "Stores the value for a key if the key does not exist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			existing, stored, err := rpcCache.PutIfAbsent(args[0], []byte(args[1]), viper.GetDuration("lifespan"))
			if err != nil {
				return err
			}
			if stored {
				fmt.Printf("key=%s, stored=true\n", args[0])
			} else {
				fmt.Printf("key=%s, stored=false, existing=%s\n", args[0], printable(existing))
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
			if resp, ok, err := rpcCache.Get(key); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, found=%v, resp=%s\n", key, ok, resp)
			}
			return nil
		},
	}
	removeCmd = &cobra.Command{
		Use:   "remove [key]",
		Short: "Removes a key and prints the previous value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prev, err := rpcCache.Remove(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, previous=%s\n", args[0], printable(prev))
			return nil
		},
	}
	removeIfCmd = &cobra.Command{
		Use:   "remove-if [key] [expected]",
		Short: "Removes a key if it holds the expected value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := rpcCache.RemoveIf(args[0], []byte(args[1]))
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, removed=%t\n", args[0], removed)
			return nil
		},
	}
	replaceCmd = &cobra.Command{
		Use:   "replace [key] [value]",
		Short: "Replaces the value of an existing key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prev, replaced, err := rpcCache.Replace(args[0], []byte(args[1]), viper.GetDuration("lifespan"))
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, replaced=%t, previous=%s\n", args[0], replaced, printable(prev))
			return nil
		},
	}
	replaceIfCmd = &cobra.Command{
		Use:   "replace-if [key] [expected] [value]",
		Short: "Replaces the value of a key if it holds the expected value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			replaced, err := rpcCache.ReplaceIf(args[0], []byte(args[1]), []byte(args[2]), viper.GetDuration("lifespan"))
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, replaced=%t\n", args[0], replaced)
			return nil
		},
	}
	computeCmd = &cobra.Command{
		Use:   "compute [key] [function] [arg]",
		Short: "Stores the result of a compute function (append, increment)",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var arg []byte
			if len(args) == 3 {
				arg = []byte(args[2])
			}
			value, err := rpcCache.Compute(args[0], args[1], arg, viper.GetDuration("lifespan"))
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, value=%s\n", args[0], printable(value))
			return nil
		},
	}
	putAllCmd = &cobra.Command{
		Use:   "put-all [key=value]...",
		Short: "Stores several key value pairs at once",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := parseEntries(args)
			if err != nil {
				return err
			}
			prev, err := rpcCache.PutAll(entries, viper.GetDuration("lifespan"))
			if err != nil {
				return err
			}
			fmt.Printf("stored %d entries\n", len(entries))
			keys := make([]string, 0, len(prev))
			for k := range prev {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("key=%s, previous=%s\n", k, prev[k])
			}
			return nil
		},
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Prints the statistics of the node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := rpcCache.Stats()
			if err != nil {
				return err
			}
			fmt.Print(stats)
			return nil
		},
	}
)

// printable renders a value for the output, <nil> for missing values
func printable(v []byte) string {
	if v == nil {
		return "<nil>"
	}
	return string(v)
}

// parseEntries parses key=value arguments
func parseEntries(args []string) (map[string][]byte, error) {
	entries := make(map[string][]byte, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid entry %q (expected key=value)", arg)
		}
		entries[key] = []byte(value)
	}
	return entries, nil
}
