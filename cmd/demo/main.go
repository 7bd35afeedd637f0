package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/intellect4all/entropy"
	"github.com/intellect4all/entropy/common"
)

// Minimal end-to-end walkthrough: create a table, load rows, query.
func main() {
	dir, err := os.MkdirTemp("", "entropy-demo")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	db, st := entropy.Open(filepath.Join(dir, "demo"+common.DatabaseFileExtension), entropy.DefaultOptions())
	if !st.OK() {
		fmt.Fprintln(os.Stderr, st.String())
		os.Exit(1)
	}
	defer db.Close()

	statements := []string{
		"CREATE TABLE users (id INTEGER PRIMARY KEY, name VARCHAR(100), age INTEGER)",
		"INSERT INTO users VALUES (1, 'Alice', 30), (2, 'Bob', 25), (3, 'Charlie', 35)",
		"SELECT * FROM users WHERE age > 26 ORDER BY age DESC",
		"UPDATE users SET age = 26 WHERE name = 'Bob'",
		"SELECT name, age FROM users ORDER BY name",
		"EXPLAIN SELECT * FROM users WHERE id = 2",
	}
	for _, sql := range statements {
		fmt.Println(">", sql)
		res := db.Execute(sql)
		if !res.OK() {
			fmt.Println("  ", res.Status.String())
			continue
		}
		for _, row := range res.Rows {
			line := ""
			for i := 0; i < row.Len(); i++ {
				if i > 0 {
					line += " | "
				}
				line += row.Value(i).String()
			}
			fmt.Println("  ", line)
		}
		if len(res.ColumnNames) == 0 {
			fmt.Printf("   %d rows affected\n", res.AffectedRows)
		}
	}
}
