package main

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"blobguard/internal/config"
)

const defaultMaxCmdConstructorLines = 90

func TestCommandConstructorsStaySmall(t *testing.T) {
	limit := maxCmdConstructorLines()
	fset := token.NewFileSet()

	pkgs, err := parser.ParseDir(fset, ".", func(fi os.FileInfo) bool {
		return !strings.HasSuffix(fi.Name(), "_test.go")
	}, 0)
	if err != nil {
		t.Fatalf("parse package: %v", err)
	}
	for _, pkg := range pkgs {
		for path, file := range pkg.Files {
			for _, decl := range file.Decls {
				fn, ok := decl.(*ast.FuncDecl)
				if !ok || fn.Body == nil || !isCommandConstructor(fn.Name.Name) {
					continue
				}
				lines := fset.Position(fn.Body.Rbrace).Line - fset.Position(fn.Body.Lbrace).Line + 1
				if lines > limit {
					t.Fatalf("%s in %s spans %d lines (max %d)", fn.Name.Name, filepath.Base(path), lines, limit)
				}
			}
		}
	}
}

func TestCommandTreeIsDocumented(t *testing.T) {
	cfg := config.Default()
	root := newRootCmd(&cfg)

	var walk func(cmd *cobra.Command)
	walk = func(cmd *cobra.Command) {
		if strings.TrimSpace(cmd.Short) == "" {
			t.Fatalf("command %q has no short help", cmd.CommandPath())
		}
		if !cmd.HasSubCommands() && cmd.RunE == nil {
			t.Fatalf("leaf command %q has no RunE", cmd.CommandPath())
		}
		for _, sub := range cmd.Commands() {
			walk(sub)
		}
	}
	walk(root)
}

func isCommandConstructor(name string) bool {
	return strings.HasPrefix(name, "new") && strings.HasSuffix(name, "Cmd")
}

func maxCmdConstructorLines() int {
	value := strings.TrimSpace(os.Getenv("BLOBGUARD_MAX_CMD_CONSTRUCTOR_LINES"))
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultMaxCmdConstructorLines
}
