// Command numadb_bench is an interactive driver for the Database package:
// no SQL tokenizer, no network service, just space-separated commands
// against an in-process handle. It exists to exercise insert/select/
// update/remove, DDL, and recovery without needing an executor layer.
package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/minidb-numa/numadb/database"
	"github.com/minidb-numa/numadb/internal/schema"
	"github.com/minidb-numa/numadb/pkg/logger"
	"github.com/minidb-numa/numadb/pkg/telemetry"
)

// telemetryConfigFromEnv lets an operator point numadb_bench at a
// Prometheus scrape target without adding a flags dependency: set
// NUMADB_TELEMETRY_PORT to a port number to turn it on.
func telemetryConfigFromEnv() telemetry.Config {
	port, err := strconv.Atoi(strings.TrimSpace(os.Getenv("NUMADB_TELEMETRY_PORT")))
	if err != nil || port <= 0 {
		return telemetry.Config{}
	}
	return telemetry.Config{Enabled: true, ServiceName: "numadb_bench", PrometheusPort: port}
}

func main() {
	log.SetFlags(0)

	dataDir := "./numadb_data"
	if len(os.Args) > 1 {
		dataDir = os.Args[1]
	}

	zl, err := logger.New(logger.Config{Level: "warn", Format: "console", OutputFile: "stderr"})
	if err != nil {
		log.Fatalf("numadb_bench: logger init: %v", err)
	}

	db, err := database.Open(dataDir, database.Options{Logger: zl, Telemetry: telemetryConfigFromEnv()})
	if err != nil {
		log.Fatalf("numadb_bench: open %s: %v", dataDir, err)
	}
	defer db.Close()

	args := os.Args[2:]
	if len(args) == 0 {
		runInteractive(db)
		return
	}
	runCommand(db, args)
}

func runInteractive(db *database.Database) {
	fmt.Println("numadb_bench (interactive). Type 'help' for commands, 'exit' or 'quit' to leave.")
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("numadb> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println("\nbye.")
				return
			}
			fmt.Printf("read error: %v\n", err)
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}
		runCommand(db, strings.Fields(line))
	}
}

func runCommand(db *database.Database, args []string) {
	if len(args) == 0 {
		return
	}
	cmd := strings.ToLower(args[0])
	rest := args[1:]

	switch cmd {
	case "help":
		printHelp()
	case "tables":
		for _, name := range db.ListTables() {
			fmt.Println(name)
		}
	case "create":
		cmdCreate(db, rest)
	case "drop":
		cmdDrop(db, rest)
	case "alter":
		cmdAlter(db, rest)
	case "schema":
		cmdSchema(db, rest)
	case "insert":
		cmdInsert(db, rest)
	case "select":
		cmdSelect(db, rest)
	case "update":
		cmdUpdate(db, rest)
	case "delete":
		cmdDelete(db, rest)
	case "checkpoint":
		if err := db.Checkpoint(); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Println("ok")
	case "status":
		cmdStatus(db, rest)
	default:
		fmt.Printf("unknown command %q, type 'help'\n", cmd)
	}
}

func printHelp() {
	fmt.Println(`Commands:
  create <table> <col:TYPE> [<col:TYPE>...]   TYPE is INT or TEXT(n)
  drop <table>
  alter <table> <col:TYPE>
  schema <table>
  tables
  insert <table> <val> [<val>...]
  select <table> [<col>=<val>]
  update <table> <col>=<val> [<col>=<val>...] where <col>=<val>
  delete <table> [<col>=<val>]
  status <table>
  checkpoint
  help
  exit / quit`)
}

func parseColumn(spec string) (schema.Column, error) {
	colon := strings.IndexByte(spec, ':')
	if colon < 0 {
		return schema.Column{}, fmt.Errorf("column spec %q must be name:TYPE", spec)
	}
	typ, length, err := schema.ParseColumnType(spec[colon+1:])
	if err != nil {
		return schema.Column{}, err
	}
	return schema.Column{Name: spec[:colon], Type: typ, Length: length}, nil
}

func cmdCreate(db *database.Database, args []string) {
	if len(args) < 2 {
		fmt.Println("error: create <table> <col:TYPE> [...]")
		return
	}
	cols := make([]schema.Column, 0, len(args)-1)
	for _, spec := range args[1:] {
		col, err := parseColumn(spec)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		cols = append(cols, col)
	}
	if err := db.CreateTable(args[0], cols); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("ok")
}

func cmdDrop(db *database.Database, args []string) {
	if len(args) != 1 {
		fmt.Println("error: drop <table>")
		return
	}
	if err := db.DropTable(args[0]); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("ok")
}

func cmdAlter(db *database.Database, args []string) {
	if len(args) != 2 {
		fmt.Println("error: alter <table> <col:TYPE>")
		return
	}
	col, err := parseColumn(args[1])
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if err := db.AlterAddColumn(args[0], col); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("ok")
}

func cmdSchema(db *database.Database, args []string) {
	if len(args) != 1 {
		fmt.Println("error: schema <table>")
		return
	}
	s, err := db.GetSchema(args[0])
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	for _, col := range s.Columns {
		fmt.Println(col.String())
	}
}

// parseValue guesses INT if the token parses as a 32-bit decimal, else
// treats it as TEXT; Schema.NormalizeValue still enforces the column's
// actual declared type and coerces or rejects accordingly.
func parseValue(token string) schema.Value {
	if n, err := strconv.ParseInt(token, 10, 32); err == nil {
		return schema.IntVal(int32(n))
	}
	return schema.TextVal(token)
}

func cmdInsert(db *database.Database, args []string) {
	if len(args) < 2 {
		fmt.Println("error: insert <table> <val> [...]")
		return
	}
	values := make([]schema.Value, 0, len(args)-1)
	for _, tok := range args[1:] {
		values = append(values, parseValue(tok))
	}
	rowID, err := db.Insert(args[0], values)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("row_id=%d\n", rowID)
}

func parseEquality(tok string) (string, schema.Value, error) {
	eq := strings.IndexByte(tok, '=')
	if eq < 0 {
		return "", schema.Value{}, fmt.Errorf("expected col=val, got %q", tok)
	}
	return tok[:eq], parseValue(tok[eq+1:]), nil
}

func cmdSelect(db *database.Database, args []string) {
	if len(args) < 1 {
		fmt.Println("error: select <table> [col=val]")
		return
	}
	var where *schema.Condition
	if len(args) >= 2 {
		col, val, err := parseEquality(args[1])
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		where = &schema.Condition{Column: col, Value: val}
	}
	rows, err := db.Select(args[0], where)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	for _, row := range rows {
		fmt.Println(formatRow(row))
	}
}

func formatRow(row []schema.Value) string {
	parts := make([]string, len(row))
	for i, v := range row {
		if v.Kind == schema.KindInt {
			parts[i] = strconv.FormatInt(int64(v.IntValue), 10)
		} else {
			parts[i] = v.TextValue
		}
	}
	return strings.Join(parts, "\t")
}

func cmdUpdate(db *database.Database, args []string) {
	// update <table> set1 [set2...] where <col>=<val>
	whereIdx := -1
	for i, a := range args {
		if strings.ToLower(a) == "where" {
			whereIdx = i
			break
		}
	}
	if len(args) < 3 || whereIdx < 0 || whereIdx+1 >= len(args) {
		fmt.Println("error: update <table> <col>=<val> [...] where <col>=<val>")
		return
	}
	table := args[0]
	setTokens := args[1:whereIdx]
	if len(setTokens) == 0 {
		fmt.Println("error: at least one SET clause required")
		return
	}
	sets := make([]schema.SetClause, 0, len(setTokens))
	for _, tok := range setTokens {
		col, val, err := parseEquality(tok)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		sets = append(sets, schema.SetClause{Column: col, Value: val})
	}
	col, val, err := parseEquality(args[whereIdx+1])
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	n, err := db.Update(table, sets, &schema.Condition{Column: col, Value: val})
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("updated=%d\n", n)
}

func cmdDelete(db *database.Database, args []string) {
	if len(args) < 1 {
		fmt.Println("error: delete <table> [col=val]")
		return
	}
	var where *schema.Condition
	if len(args) >= 2 {
		col, val, err := parseEquality(args[1])
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		where = &schema.Condition{Column: col, Value: val}
	}
	n, err := db.Remove(args[0], where)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("deleted=%d\n", n)
}

func cmdStatus(db *database.Database, args []string) {
	if len(args) != 1 {
		fmt.Println("error: status <table>")
		return
	}
	counts, err := db.CachedPagesPerNode(args[0])
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	for node, count := range counts {
		fmt.Printf("node %d: %d cached pages\n", node, count)
	}
}
