// Steelc reads binary files using structure definitions written in the idl format.
//
//	steelc check formats.steel
//	steelc dump formats.steel Header image.bmp
//	steelc -stream dump formats.steel Record records.bin
//	steelc encode formats.steel Header header.json > header.bin
//
// dump writes JSON, encode reads JSON in the same form and writes the binary structure.
// A file argument of "-" or no file argument reads standard input.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bearlytools/steel"
	"github.com/bearlytools/steel/idl"
	"github.com/bearlytools/steel/internal/conversions"
	"github.com/bearlytools/steel/steeljson"
)

func main() {
	ctx := context.Background()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		exit(err)
	}
}

type config struct {
	hex    bool
	indent string
	stream bool
	logger *slog.Logger
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("steelc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "log debug output to stderr")
	hex := fs.Bool("hex", false, "write byte fields as hex instead of base64")
	indent := fs.String("indent", "", "indent JSON output with this string")
	stream := fs.Bool("stream", false, "dump records until the input ends, one JSON document per line")
	if err := fs.Parse(args); err != nil {
		return err
	}
	args = fs.Args()
	if len(args) == 0 {
		return fmt.Errorf("usage: steelc [flags] check|dump|encode <definitions> [schema] [file]")
	}

	cfg := config{hex: *hex, indent: *indent, stream: *stream, logger: slog.New(slog.DiscardHandler)}
	if *verbose {
		cfg.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	cmd, args := args[0], args[1:]
	switch cmd {
	case "check":
		if len(args) != 1 {
			return fmt.Errorf("usage: steelc check <definitions>")
		}
		return handleCheck(ctx, cfg, args[0], stdout)
	case "dump", "encode":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("usage: steelc %s <definitions> <schema> [file]", cmd)
		}
		_, s, err := loadSchema(ctx, cfg, args[0], args[1])
		if err != nil {
			return err
		}
		in, closer, err := openInput(args[2:], stdin)
		if err != nil {
			return err
		}
		defer closer()
		if cmd == "dump" {
			return handleDump(ctx, cfg, s, in, stdout)
		}
		return handleEncode(cfg, s, in, stdout, stderr)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// loadDefinitions parses the definition file at path.
func loadDefinitions(ctx context.Context, cfg config, path string) (*idl.File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("problem reading file %s: %w", path, err)
	}
	f, err := idl.Parse(ctx, conversions.ByteSlice2String(content), steel.WithLogger(cfg.logger))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func loadSchema(ctx context.Context, cfg config, path, name string) (*idl.File, *steel.Schema, error) {
	f, err := loadDefinitions(ctx, cfg, path)
	if err != nil {
		return nil, nil, err
	}
	s, ok := f.Schema(name)
	if !ok {
		return nil, nil, fmt.Errorf("%s does not define %q, it has: %s", path, name, strings.Join(f.Order, ", "))
	}
	return f, s, nil
}

func openInput(args []string, stdin io.Reader) (io.Reader, func(), error) {
	if len(args) == 0 || args[0] == "-" {
		return bufio.NewReader(stdin), func() {}, nil
	}
	file, err := os.Open(args[0])
	if err != nil {
		return nil, nil, err
	}
	return bufio.NewReader(file), func() { file.Close() }, nil
}

func handleCheck(ctx context.Context, cfg config, path string, stdout io.Writer) error {
	f, err := loadDefinitions(ctx, cfg, path)
	if err != nil {
		return err
	}
	for _, name := range f.Order {
		s := f.Schemas[name]
		kind := "schema"
		if s.IsBits() {
			kind = "bits"
		}
		fmt.Fprintf(stdout, "%s %s: %s\n", kind, name, strings.Join(s.Fields(), ", "))
	}
	return nil
}

func handleDump(ctx context.Context, cfg config, s *steel.Schema, r io.Reader, stdout io.Writer) error {
	opts := []steeljson.MarshalOption{steeljson.WithHexBytes(cfg.hex), steeljson.WithIndent(cfg.indent)}
	if !cfg.stream {
		in, err := steel.Parse(s, r)
		if err != nil {
			return err
		}
		return steeljson.MarshalWriter(ctx, in, stdout, opts...)
	}

	n := 0
	for in, err := range steel.Stream(s, r) {
		if err != nil {
			return fmt.Errorf("record %d: %w", n, err)
		}
		if err := steeljson.MarshalWriter(ctx, in, stdout, opts...); err != nil {
			return fmt.Errorf("record %d: %w", n, err)
		}
		n++
	}
	cfg.logger.Debug("stream done", "schema", s.Name(), "records", n)
	return nil
}

func handleEncode(cfg config, s *steel.Schema, r io.Reader, stdout, stderr io.Writer) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	in, err := steeljson.Unmarshal(data, s, steeljson.WithHexBytes(cfg.hex))
	if err != nil {
		return err
	}
	if errs := in.Validate(); len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(stderr, err)
		}
		return fmt.Errorf("%d fields did not validate", len(errs))
	}
	return in.Save(stdout)
}

func exit(i ...any) {
	fmt.Println(i...)
	os.Exit(1)
}
