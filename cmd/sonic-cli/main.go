// Command sonic-cli is a small command line tool to exercise a sonic
// server: push and pop index text, run queries and suggestions, flush
// scopes and fire control triggers.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/searchbound/sonic"
)

var (
	flagAddr     string
	flagPassword string
	flagTimeout  time.Duration
	flagVerbose  bool

	flagLang   string
	flagLimit  int
	flagOffset int
)

func main() {
	root := &cobra.Command{
		Use:           "sonic-cli",
		Short:         "Command line client for the sonic search server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagAddr, "addr", "localhost:1491", "sonic server address")
	root.PersistentFlags().StringVar(&flagPassword, "password", "SecretPassword", "channel password")
	root.PersistentFlags().DurationVar(&flagTimeout, "timeout", 10*time.Second, "command timeout")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log connection activity")

	root.AddCommand(
		pushCmd(),
		popCmd(),
		countCmd(),
		flushCmd(),
		queryCmd(),
		suggestCmd(),
		triggerCmd(),
		pingCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func clientConfig() sonic.Config {
	logger := zap.NewNop()
	if flagVerbose {
		l, err := zap.NewDevelopment()
		if err == nil {
			logger = l
		}
	}
	return sonic.Config{
		Password: flagPassword,
		Timeout:  flagTimeout,
		Logger:   logger,
	}
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), flagTimeout)
}

func pushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push <collection> <bucket> <object> <text>...",
		Short: "Index text for an object",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := sonic.NewIngestClient(sonic.NewStaticServers(flagAddr), clientConfig())
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := commandContext()
			defer cancel()

			text := strings.Join(args[3:], " ")
			if err := client.Push(ctx, args[0], args[1], args[2], text, flagLang); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&flagLang, "lang", "", "ISO 639-3 locale hint")
	return cmd
}

func popCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pop <collection> <bucket> <object> <text>...",
		Short: "Remove indexed text from an object",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := sonic.NewIngestClient(sonic.NewStaticServers(flagAddr), clientConfig())
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := commandContext()
			defer cancel()

			count, err := client.Pop(ctx, args[0], args[1], args[2], strings.Join(args[3:], " "))
			if err != nil {
				return err
			}
			fmt.Println(count)
			return nil
		},
	}
}

func countCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count <collection> [bucket] [object]",
		Short: "Count buckets, objects or terms",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := sonic.NewIngestClient(sonic.NewStaticServers(flagAddr), clientConfig())
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := commandContext()
			defer cancel()

			collection, bucket, object := scopeArgs(args)
			count, err := client.Count(ctx, collection, bucket, object)
			if err != nil {
				return err
			}
			fmt.Println(count)
			return nil
		},
	}
}

func flushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush <collection> [bucket] [object]",
		Short: "Erase a collection, bucket or object",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := sonic.NewIngestClient(sonic.NewStaticServers(flagAddr), clientConfig())
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := commandContext()
			defer cancel()

			collection, bucket, object := scopeArgs(args)
			count, err := client.Flush(ctx, collection, bucket, object)
			if err != nil {
				return err
			}
			fmt.Printf("flushed %d objects\n", count)
			return nil
		},
	}
}

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <collection> <bucket> <terms>...",
		Short: "Search a bucket for terms",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := sonic.NewSearchClient(sonic.NewStaticServers(flagAddr), clientConfig())
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := commandContext()
			defer cancel()

			ids, err := client.Query(ctx, args[0], args[1], strings.Join(args[2:], " "), sonic.QueryOptions{
				Limit:  flagLimit,
				Offset: flagOffset,
				Lang:   flagLang,
			})
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("(no results)")
				return nil
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&flagLimit, "limit", 0, "maximum number of results")
	cmd.Flags().IntVar(&flagOffset, "offset", 0, "results to skip")
	cmd.Flags().StringVar(&flagLang, "lang", "", "ISO 639-3 locale hint")
	return cmd
}

func suggestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest <collection> <bucket> <word>",
		Short: "Complete a word against indexed terms",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := sonic.NewSearchClient(sonic.NewStaticServers(flagAddr), clientConfig())
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := commandContext()
			defer cancel()

			words, err := client.Suggest(ctx, args[0], args[1], args[2], flagLimit)
			if err != nil {
				return err
			}
			for _, w := range words {
				fmt.Println(w)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&flagLimit, "limit", 0, "maximum number of suggestions")
	return cmd
}

func triggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <action> [data]...",
		Short: "Fire a server action (consolidate, backup, restore)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := sonic.NewControlClient(sonic.NewStaticServers(flagAddr), clientConfig())
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := commandContext()
			defer cancel()

			if err := client.Trigger(ctx, args[0], args[1:]...); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	}
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check connectivity on the search channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := sonic.NewSearchClient(sonic.NewStaticServers(flagAddr), clientConfig())
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := commandContext()
			defer cancel()

			start := time.Now()
			if err := client.Ping(ctx); err != nil {
				return err
			}
			fmt.Printf("PONG (%s)\n", time.Since(start).Round(time.Microsecond))
			return nil
		},
	}
}

func scopeArgs(args []string) (collection, bucket, object string) {
	collection = args[0]
	if len(args) > 1 {
		bucket = args[1]
	}
	if len(args) > 2 {
		object = args[2]
	}
	return
}
