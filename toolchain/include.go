package toolchain

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// IncludeKind tells a resolver how a directive named its target.
type IncludeKind uint8

const (
	// IncludeRelative is #include "target", resolved against the requester.
	IncludeRelative IncludeKind = iota
	// IncludeSystem is #include <target>, resolved against search directories.
	IncludeSystem
)

// IncludeFunc resolves an #include target requested from requester. It
// returns the resolved name, used for cycle and #pragma once tracking, and
// the file contents.
type IncludeFunc func(target, requester string, kind IncludeKind) (resolved string, content []byte, err error)

// FileIncluder resolves includes from the file system. Relative targets are
// tried next to the requester first, then in dirs in order. System targets
// only search dirs.
func FileIncluder(dirs ...string) IncludeFunc {
	return func(target, requester string, kind IncludeKind) (string, []byte, error) {
		var candidates []string
		if filepath.IsAbs(target) {
			candidates = append(candidates, target)
		} else {
			if kind == IncludeRelative {
				candidates = append(candidates, filepath.Join(filepath.Dir(requester), target))
			}
			for _, dir := range dirs {
				candidates = append(candidates, filepath.Join(dir, target))
			}
		}
		for _, c := range candidates {
			data, err := os.ReadFile(c)
			if err == nil {
				return filepath.Clean(c), data, nil
			}
			if !os.IsNotExist(err) {
				return "", nil, err
			}
		}
		return "", nil, fmt.Errorf("%q not found", target)
	}
}

// Preprocess inlines every #include in source. Include cycles and
// unresolvable targets fail with ErrInclude. Files marked #pragma once are
// inlined a single time.
func Preprocess(name, source string, include IncludeFunc) (string, error) {
	return preprocess(name, source, include, false)
}

func preprocess(name, source string, include IncludeFunc, lineMarkers bool) (string, error) {
	if include == nil {
		include = FileIncluder()
	}
	p := &preprocessor{
		include:     include,
		lineMarkers: lineMarkers,
		active:      make(map[string]bool),
		once:        make(map[string]bool),
	}
	var sb strings.Builder
	if err := p.expand(&sb, name, source); err != nil {
		return "", err
	}
	return sb.String(), nil
}

type preprocessor struct {
	include     IncludeFunc
	lineMarkers bool
	active      map[string]bool
	once        map[string]bool
}

func (p *preprocessor) expand(sb *strings.Builder, name, source string) error {
	p.active[name] = true
	defer delete(p.active, name)

	sc := bufio.NewScanner(strings.NewReader(source))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<24)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		directive := strings.TrimSpace(text)

		if directive == "#pragma once" {
			p.once[name] = true
			continue
		}

		target, kind, ok := parseInclude(directive)
		if !ok {
			sb.WriteString(text)
			sb.WriteByte('\n')
			continue
		}

		resolved, content, err := p.include(target, name, kind)
		if err != nil {
			return fmt.Errorf("%w: %s:%d: %w", ErrInclude, name, line, err)
		}
		if p.active[resolved] {
			return fmt.Errorf("%w: %s:%d: include cycle through %q", ErrInclude, name, line, resolved)
		}
		if p.once[resolved] {
			continue
		}

		p.marker(sb, 1, resolved)
		if err := p.expand(sb, resolved, string(content)); err != nil {
			return err
		}
		p.marker(sb, line+1, name)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInclude, name, err)
	}
	return nil
}

func (p *preprocessor) marker(sb *strings.Builder, line int, name string) {
	if !p.lineMarkers {
		return
	}
	sb.WriteString("#line ")
	sb.WriteString(strconv.Itoa(line))
	sb.WriteString(" ")
	sb.WriteString(strconv.Quote(filepath.ToSlash(name)))
	sb.WriteByte('\n')
}

// parseInclude recognizes `#include "x"` and `#include <x>`.
func parseInclude(directive string) (string, IncludeKind, bool) {
	if !strings.HasPrefix(directive, "#") {
		return "", 0, false
	}
	rest := strings.TrimSpace(directive[1:])
	if !strings.HasPrefix(rest, "include") {
		return "", 0, false
	}
	rest = strings.TrimSpace(rest[len("include"):])
	if len(rest) < 2 {
		return "", 0, false
	}
	var closing byte
	var kind IncludeKind
	switch rest[0] {
	case '"':
		closing, kind = '"', IncludeRelative
	case '<':
		closing, kind = '>', IncludeSystem
	default:
		return "", 0, false
	}
	end := strings.IndexByte(rest[1:], closing)
	if end <= 0 {
		return "", 0, false
	}
	return rest[1 : end+1], kind, true
}
