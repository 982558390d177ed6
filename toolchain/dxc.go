package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DXC compiles HLSL by running dxc and a SPIR-V to WGSL translator.
type DXC struct {
	// Command runs dxc. Extra elements after the program are passed first.
	Command []string

	// Translator runs the SPIR-V to WGSL step and receives the input and
	// output paths as its final two arguments.
	Translator []string

	// Include resolves #include directives. Nil uses FileIncluder().
	Include IncludeFunc

	// TempDir holds intermediate files. Empty uses os.TempDir().
	TempDir string
}

// NewDXC returns a compiler using dxc and naga from PATH.
func NewDXC(includeDirs ...string) *DXC {
	return &DXC{
		Command:    []string{"dxc"},
		Translator: []string{"naga"},
		Include:    FileIncluder(includeDirs...),
	}
}

// Compile implements Compiler.
func (d *DXC) Compile(ctx context.Context, req *Request) (*Bytecode, error) {
	include := req.Include
	if include == nil {
		include = d.Include
	}
	src, err := preprocess(req.Name, req.Source, include, true)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(d.TempDir, "ttce-dxc-*")
	if err != nil {
		return nil, &Error{Tool: "dxc", Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
	}
	defer os.RemoveAll(dir)

	srcPath := filepath.Join(dir, "shader.hlsl")
	spvPath := filepath.Join(dir, "shader.spv")
	wgslPath := filepath.Join(dir, "shader.wgsl")
	if err := os.WriteFile(srcPath, []byte(src), 0o600); err != nil {
		return nil, &Error{Tool: "dxc", Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
	}

	args := []string{"-T", req.Profile, "-E", req.EntryPoint}
	args = append(args, req.Flags...)
	args = append(args, "-Fo", spvPath, srcPath)
	if err := run(ctx, "dxc", d.Command, args); err != nil {
		return nil, err
	}
	if err := run(ctx, "translator", d.Translator, []string{spvPath, wgslPath}); err != nil {
		return nil, err
	}

	spv, err := os.ReadFile(spvPath)
	if err != nil {
		return nil, &Error{Tool: "dxc", Err: fmt.Errorf("%w: %w", ErrCompile, err)}
	}
	wgsl, err := os.ReadFile(wgslPath)
	if err != nil {
		return nil, &Error{Tool: "translator", Err: fmt.Errorf("%w: %w", ErrCompile, err)}
	}
	return &Bytecode{Name: req.Name, WGSL: string(wgsl), SPIRV: spv}, nil
}

func run(ctx context.Context, tool string, command, args []string) error {
	if len(command) == 0 {
		return &Error{Tool: tool, Err: fmt.Errorf("%w: no command configured", ErrUnavailable)}
	}
	argv := append(append([]string(nil), command[1:]...), args...)
	cmd := exec.CommandContext(ctx, command[0], argv...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &Error{
			Tool: tool,
			Log:  strings.TrimSpace(stderr.String()),
			Err:  fmt.Errorf("%w: %s exited with code %d", ErrCompile, command[0], exitErr.ExitCode()),
		}
	}
	return &Error{Tool: tool, Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
}
