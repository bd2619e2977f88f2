package exports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/fluxbase-eu/sharedmods/internal/jsparse"
	"github.com/fluxbase-eu/sharedmods/internal/manifest"
)

// nodeScript prints the own enumerable keys of the required module as JSON.
const nodeScript = `const m = require(process.argv[1]);
const keys = m !== null && (typeof m === 'object' || typeof m === 'function') ? Object.keys(m) : [];
process.stdout.write(JSON.stringify(keys));`

// NodeIntrospector loads a package with node and lists its exports, the way
// a CommonJS consumer would see them.
type NodeIntrospector struct {
	nodePath string
	dir      string
	timeout  time.Duration
}

// NewNodeIntrospector creates an introspector running node from dir, the
// directory whose node_modules holds the installed packages. An empty nodePath
// is looked up on PATH.
func NewNodeIntrospector(nodePath, dir string) *NodeIntrospector {
	if nodePath == "" {
		nodePath = lookupNode()
	}
	return &NodeIntrospector{
		nodePath: nodePath,
		dir:      dir,
		timeout:  30 * time.Second,
	}
}

func lookupNode() string {
	nodePath, err := exec.LookPath("node")
	if err == nil {
		return nodePath
	}
	paths := []string{
		"/usr/local/bin/node",
		"/usr/bin/node",
		"/opt/homebrew/bin/node",
	}
	for _, path := range paths {
		if _, err := exec.LookPath(path); err == nil {
			return path
		}
	}
	return ""
}

// Available reports whether the node executable exists.
func (n *NodeIntrospector) Available() bool {
	if n.nodePath == "" {
		return false
	}
	_, err := exec.LookPath(n.nodePath)
	return err == nil
}

// Exports implements Introspector.
func (n *NodeIntrospector) Exports(ctx context.Context, name string) ([]string, error) {
	if n.nodePath == "" {
		return nil, fmt.Errorf("%w: node executable not found", ErrNotIntrospectable)
	}

	execCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, n.nodePath, "-e", nodeScript, name)
	cmd.Dir = n.dir
	cmd.Env = append(os.Environ(), "NODE_ENV=production")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %s: timeout after %s", ErrNotIntrospectable, name, n.timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrNotIntrospectable, name, firstLine(msg))
	}

	var keys []string
	if err := json.Unmarshal(stdout.Bytes(), &keys); err != nil {
		return nil, fmt.Errorf("%w: %s: unexpected output: %v", ErrNotIntrospectable, name, err)
	}
	return keys, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// StaticIntrospector reads exports from the source of a package's entry
// without executing it. `export * from` re-exports are followed.
type StaticIntrospector struct {
	resolver *manifest.Resolver
	maxFiles int
}

// NewStaticIntrospector creates an introspector resolving packages with resolver.
func NewStaticIntrospector(resolver *manifest.Resolver) *StaticIntrospector {
	return &StaticIntrospector{resolver: resolver, maxFiles: 500}
}

// Exports implements Introspector.
func (s *StaticIntrospector) Exports(ctx context.Context, name string) ([]string, error) {
	pkg, err := s.resolver.Resolve(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotIntrospectable, err)
	}

	c := &collector{resolver: s.resolver, visited: make(map[string]bool), max: s.maxFiles}
	if err := c.collect(ctx, pkg.ModuleEntry, true); err != nil {
		return nil, err
	}
	return c.names, nil
}

type collector struct {
	resolver *manifest.Resolver
	visited  map[string]bool
	max      int
	names    []string
}

func (c *collector) collect(ctx context.Context, path string, withDefault bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.visited[path] {
		return nil
	}
	if len(c.visited) >= c.max {
		return fmt.Errorf("%w: more than %d files re-exported", ErrNotIntrospectable, c.max)
	}
	c.visited[path] = true

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotIntrospectable, err)
	}
	file, err := jsparse.Parse(path, content)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotIntrospectable, err)
	}

	for _, exp := range file.Exports {
		if exp.From == "" {
			// `export *` never forwards the default export
			if exp.Name == DefaultSymbol && !withDefault {
				continue
			}
			c.names = append(c.names, exp.Name)
			continue
		}

		target, ok := c.resolve(path, exp.From)
		if !ok {
			continue
		}
		if err := c.collect(ctx, target, false); err != nil {
			return err
		}
	}
	return nil
}

func (c *collector) resolve(from, spec string) (string, bool) {
	if !jsparse.IsBareSpecifier(spec) {
		return manifest.ResolveRelative(from, spec)
	}
	if jsparse.PackageName(spec) != spec {
		return "", false
	}
	pkg, err := c.resolver.Resolve(spec)
	if err != nil {
		return "", false
	}
	return pkg.ModuleEntry, true
}

// ChainIntrospector asks each introspector in turn and returns the first
// non-empty answer.
type ChainIntrospector []Introspector

// Exports implements Introspector.
func (c ChainIntrospector) Exports(ctx context.Context, name string) ([]string, error) {
	var errs []error
	for _, in := range c {
		names, err := in.Exports(ctx, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(names) > 0 {
			return names, nil
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, nil
}

// StaticKeys is an introspector backed by a fixed map. Packages missing from
// the map are not introspectable.
type StaticKeys map[string][]string

// Exports implements Introspector.
func (s StaticKeys) Exports(ctx context.Context, name string) ([]string, error) {
	names, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotIntrospectable, name)
	}
	return names, nil
}
