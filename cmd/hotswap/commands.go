package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chazu/hotswap/config"
	"github.com/chazu/hotswap/descriptor"
	"github.com/chazu/hotswap/diff"
	"github.com/chazu/hotswap/executor"
	"github.com/chazu/hotswap/server"
	"github.com/chazu/hotswap/unit"
)

func client(cfg *config.Config) *server.Client {
	addr := cfg.Server.Addr
	if !strings.Contains(addr, "://") {
		if strings.HasPrefix(addr, ":") {
			addr = "127.0.0.1" + addr
		}
		addr = "http://" + addr
	}
	return server.NewClient(nil, addr)
}

func callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func readUnit(path string) ([]byte, *unit.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	u, err := unit.Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, u, nil
}

func runApply(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: hotswap apply <unit>...")
	}
	ctx, cancel := callContext()
	defer cancel()
	c := client(cfg)
	for _, path := range args {
		data, u, err := readUnit(path)
		if err != nil {
			return err
		}
		resp, err := c.Apply(ctx, cfg.Units.Scope, u.Name, data)
		if err != nil {
			return fmt.Errorf("%s: %w", u.Name, err)
		}
		switch resp.Outcome {
		case "applied":
			fmt.Printf("%s: version %d (%s) %s\n", u.Name, resp.Seq, resp.Tag, resp.Summary)
		default:
			fmt.Printf("%s: %s\n", u.Name, resp.Outcome)
			for _, r := range resp.Reasons {
				fmt.Printf("  %s\n", r)
			}
		}
	}
	return nil
}

func runDescribe(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("describe", flag.ContinueOnError)
	remote := fs.Bool("remote", false, "Describe the served version of a type")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: hotswap describe [-remote] <unit|type>")
	}
	if *remote {
		ctx, cancel := callContext()
		defer cancel()
		resp, err := client(cfg).Describe(ctx, cfg.Units.Scope, fs.Arg(0))
		if err != nil {
			return err
		}
		fmt.Print(resp.Listing)
		for _, v := range resp.Versions {
			fmt.Printf("version %d (%s) %s\n", v.Seq, v.Tag, v.Summary)
		}
		return nil
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	d, err := descriptor.Extract(data)
	if err != nil {
		return err
	}
	fmt.Print(d.Listing())
	return nil
}

func runDiff(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("diff", flag.ContinueOnError)
	remote := fs.Bool("remote", false, "Diff against the served version")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *remote {
		if fs.NArg() != 1 {
			return fmt.Errorf("usage: hotswap diff -remote <unit>")
		}
		data, u, err := readUnit(fs.Arg(0))
		if err != nil {
			return err
		}
		ctx, cancel := callContext()
		defer cancel()
		resp, err := client(cfg).Diff(ctx, cfg.Units.Scope, u.Name, data)
		if err != nil {
			return err
		}
		fmt.Print(resp.Diff)
		fmt.Printf("changed: %s\n", resp.Aspects)
		for _, b := range resp.Blocked {
			fmt.Printf("blocked: %s\n", b)
		}
		return nil
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: hotswap diff <old> <new>")
	}
	return diffFiles(os.Stdout, fs.Arg(0), fs.Arg(1))
}

func diffFiles(w io.Writer, oldPath, newPath string) error {
	ord := descriptor.NewOrdinals()
	var ds [2]*descriptor.Descriptor
	for i, path := range []string{oldPath, newPath} {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if ds[i], err = descriptor.Extract(data, descriptor.WithOrdinals(ord)); err != nil {
			return err
		}
	}
	text, err := diff.Render(ds[0], ds[1])
	if err != nil {
		return err
	}
	fmt.Fprint(w, text)
	res := diff.Compare(ds[0], ds[1])
	for _, mc := range res.NewOrChanged {
		fmt.Fprintf(w, "new or changed: %s %s\n", mc.Method.Key(), mc.Kinds)
	}
	for _, m := range res.Deleted {
		fmt.Fprintf(w, "deleted: %s\n", m.Key())
	}
	return nil
}

// runExecutor generates the executor of the second unit as version 1 of
// the first and prints its methods.
func runExecutor(w io.Writer, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: hotswap executor <original> <new>")
	}
	_, ou, err := readUnit(args[0])
	if err != nil {
		return err
	}
	_, nu, err := readUnit(args[1])
	if err != nil {
		return err
	}
	if ou.Name != nu.Name {
		return fmt.Errorf("%s is a version of %s, not %s", args[1], nu.Name, ou.Name)
	}

	ord := descriptor.NewOrdinals()
	orig, err := descriptor.FromUnit(ou, descriptor.MustSucceed(), descriptor.WithOrdinals(ord))
	if err != nil {
		return err
	}
	latest, err := descriptor.FromUnit(nu, descriptor.MustSucceed(), descriptor.WithOrdinals(ord))
	if err != nil {
		return err
	}
	res, err := executor.Generate(nu, latest, executor.Env{
		Seq:      1,
		Original: orig,
		Aware:    func(typ string) bool { return typ == ou.Name },
		OriginalConstructor: func(typ, desc string) (bool, error) {
			return orig.Method(unit.Constructor+desc) != nil, nil
		},
	})
	if err != nil {
		return err
	}

	e := res.Unit
	fmt.Fprintf(w, "executor %s\n", e.Name)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for key, d := range res.Delegations {
		fmt.Fprintf(tw, "  delegation\t%s\t%s\n", key, d)
	}
	for key, name := range res.Renames {
		fmt.Fprintf(tw, "  rename\t%s\t%s\n", key, name)
	}
	tw.Flush()
	for _, m := range e.Methods {
		fmt.Fprintf(w, "\n%s%s [%s]\n", m.Name, m.Desc, m.Access)
		if len(m.Code) == 0 {
			continue
		}
		for _, line := range strings.Split(unit.Disassemble(m.Code, e), "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	return nil
}

func runList(cfg *config.Config) error {
	ctx, cancel := callContext()
	defer cancel()
	types, err := client(cfg).List(ctx, "")
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCOPE\tTYPE\tVERSION\tTAG")
	for _, t := range types {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", t.Scope, t.Type, t.Seq, t.Tag)
	}
	return tw.Flush()
}

func runHistory(cfg *config.Config, args []string) error {
	var typeName string
	if len(args) > 0 {
		typeName = args[0]
	}
	ctx, cancel := callContext()
	defer cancel()
	entries, err := client(cfg).History(ctx, cfg.Units.Scope, typeName)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTYPE\tVERSION\tTAG\tOUTCOME")
	for _, e := range entries {
		at := time.Unix(0, e.At).Format(time.RFC3339)
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", at, e.Type, e.Seq, e.Tag, e.Outcome)
	}
	return tw.Flush()
}
