package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"

	"github.com/intellect4all/entropy"
	"github.com/intellect4all/entropy/common"
)

var (
	flagCache    string
	flagPageSize int
	flagNoWAL    bool
	flagCompress bool
)

func openDatabase(path string) (*entropy.Database, error) {
	opts := entropy.DefaultOptions()
	if flagCache != "" {
		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(flagCache)); err != nil {
			return nil, fmt.Errorf("invalid --cache value %q: %w", flagCache, err)
		}
		frames := int(size.Bytes()) / flagPageSize
		if frames < common.MinBufferPoolSize {
			frames = common.MinBufferPoolSize
		}
		opts.BufferPoolSize = frames
	}
	opts.PageSize = flagPageSize
	opts.EnableWAL = !flagNoWAL
	opts.EnableCompression = flagCompress
	db, st := entropy.Open(path, opts)
	if !st.OK() {
		return nil, fmt.Errorf("open %s: %s", path, st)
	}
	return db, nil
}

func printResult(res entropy.Result) {
	if !res.OK() {
		fmt.Println(res.Status.String())
		return
	}
	if len(res.ColumnNames) > 0 {
		fmt.Println(strings.Join(res.ColumnNames, " | "))
		for _, row := range res.Rows {
			parts := make([]string, row.Len())
			for i := range parts {
				parts[i] = row.Value(i).String()
			}
			fmt.Println(strings.Join(parts, " | "))
		}
		fmt.Printf("(%d rows)\n", res.RowCount())
		return
	}
	fmt.Printf("OK, %d rows affected\n", res.AffectedRows)
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell <database>",
		Short: "Interactive SQL shell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			fmt.Printf("entropy shell — %s\n", args[0])
			fmt.Println("Type SQL statements terminated by ';', or \\q to quit.")
			scanner := bufio.NewScanner(os.Stdin)
			var pending strings.Builder
			fmt.Print("entropy> ")
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "\\q" || line == "exit" || line == "quit" {
					break
				}
				pending.WriteString(line)
				pending.WriteByte(' ')
				if strings.HasSuffix(line, ";") {
					printResult(db.Execute(pending.String()))
					pending.Reset()
					fmt.Print("entropy> ")
				} else {
					fmt.Print("      -> ")
				}
			}
			return scanner.Err()
		},
	}
}

func execCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <database> <sql>",
		Short: "Execute one SQL statement and print the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(args[0])
			if err != nil {
				return err
			}
			defer db.Close()
			printResult(db.Execute(args[1]))
			return nil
		},
	}
}

func main() {
	common.InitLogger()
	root := &cobra.Command{
		Use:   "entropy",
		Short: "Entropy embeddable SQL storage engine",
	}
	root.PersistentFlags().StringVar(&flagCache, "cache", "", "buffer pool size (e.g. 64MB)")
	root.PersistentFlags().IntVar(&flagPageSize, "page-size", common.DefaultPageSize, "page size in bytes")
	root.PersistentFlags().BoolVar(&flagNoWAL, "no-wal", false, "disable write-ahead logging")
	root.PersistentFlags().BoolVar(&flagCompress, "compress", false, "compress pages on disk")
	root.AddCommand(shellCmd(), execCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
