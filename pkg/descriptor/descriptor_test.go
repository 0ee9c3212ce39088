package descriptor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func validDescriptor(t *testing.T) LaunchDescriptor {
	t.Helper()
	logDir := filepath.Join(t.TempDir(), "logs")
	return LaunchDescriptor{
		Name:        "svc",
		Script:      "/bin/true",
		Args:        "",
		Interpreter: "/bin/sh",
		LogFile:     filepath.Join(logDir, "svc.log"),
		OutFile:     filepath.Join(logDir, "svc-out.log"),
		ErrorFile:   filepath.Join(logDir, "svc-error.log"),
	}
}

func TestToSpawnSpec_InterpreterConvention(t *testing.T) {
	d := validDescriptor(t)
	require.NoError(t, d.Validate())

	spec := d.ToSpawnSpec()
	assert.Equal(t, "/bin/sh", spec.Executable)
	assert.Equal(t, []string{"/bin/true"}, spec.Arguments)
	assert.Equal(t, d.OutFile, spec.Stdout)
	assert.Equal(t, d.ErrorFile, spec.Stderr)
	assert.Equal(t, d.LogFile, spec.CombinedLog)
	assert.Equal(t, []string{"/bin/sh", "/bin/true"}, spec.Argv())
}

func TestToSpawnSpec_UvicornArgs(t *testing.T) {
	d := Example().Apps[0]

	spec := d.ToSpawnSpec()
	assert.Equal(t, d.Interpreter, spec.Executable)
	assert.Equal(t, []string{d.Script, "main:app", "--host", "0.0.0.0", "--port", "8000"}, spec.Arguments)
}

func TestToSpawnSpec_InterpreterNone(t *testing.T) {
	d := LaunchDescriptor{Name: "direct", Script: "/usr/bin/env", Args: `printf "%s" 'a b'`, Interpreter: InterpreterNone}

	spec := d.ToSpawnSpec()
	assert.Equal(t, "/usr/bin/env", spec.Executable)
	assert.Equal(t, []string{"printf", "%s", "a b"}, spec.Arguments)
}

func TestToSpawnSpec_EnvSortedAndCopied(t *testing.T) {
	d := LaunchDescriptor{
		Name: "env", Script: "/bin/true", Interpreter: "/bin/sh",
		Env: map[string]string{"PORT": "8000", "APP_ENV": "production"},
	}

	spec := d.ToSpawnSpec()
	require.Equal(t, []string{"APP_ENV=production", "PORT=8000"}, spec.Env)

	spec.Env[0] = "MUTATED=1"
	assert.Equal(t, "production", d.Env["APP_ENV"])
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"Empty", "", []string{}},
		{"Words", "main:app --host 0.0.0.0", []string{"main:app", "--host", "0.0.0.0"}},
		{"DoubleQuotes", `--title "hello world"`, []string{"--title", "hello world"}},
		{"SingleQuotes", `--title 'a "b" c'`, []string{"--title", `a "b" c`}},
		{"Escaped", `a\ b c`, []string{"a b", "c"}},
		{"ExtraSpaces", "  a   b  ", []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SplitArgs(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := SplitArgs(`--title "unterminated`)
	assert.Error(t, err)
}

func TestValidate_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*LaunchDescriptor)
		field  string
	}{
		{"EmptyName", func(d *LaunchDescriptor) { d.Name = "" }, "name"},
		{"BlankName", func(d *LaunchDescriptor) { d.Name = "   " }, "name"},
		{"EmptyScript", func(d *LaunchDescriptor) { d.Script = "" }, "script"},
		{"EmptyInterpreter", func(d *LaunchDescriptor) { d.Interpreter = "" }, "interpreter"},
		{"EmptyLogFile", func(d *LaunchDescriptor) { d.LogFile = "" }, "log_file"},
		{"EmptyOutFile", func(d *LaunchDescriptor) { d.OutFile = "" }, "out_file"},
		{"EmptyErrorFile", func(d *LaunchDescriptor) { d.ErrorFile = "" }, "error_file"},
		{"UnterminatedQuote", func(d *LaunchDescriptor) { d.Args = `"oops` }, "args"},
		{"BadEnvName", func(d *LaunchDescriptor) { d.Env = map[string]string{"A=B": "c"} }, "env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDescriptor(t)
			tt.mutate(&d)

			err := d.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), "expected malformed, got %v", err)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestValidate_PathNotFound(t *testing.T) {
	d := validDescriptor(t)
	d.Script = "/nonexistent/uvicorn"

	err := d.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPathNotFound)
	assert.Contains(t, err.Error(), "/nonexistent/uvicorn")

	d = validDescriptor(t)
	d.Interpreter = "/nonexistent/python"
	assert.ErrorIs(t, d.Validate(), ErrPathNotFound)

	d = validDescriptor(t)
	d.Interpreter = "definitely-not-a-real-interpreter-xyz"
	assert.ErrorIs(t, d.Validate(), ErrPathNotFound)
}

func TestValidate_Cwd(t *testing.T) {
	d := validDescriptor(t)
	d.Cwd = t.TempDir()
	assert.NoError(t, d.Validate())

	d.Cwd = "/nonexistent/workdir"
	err := d.Validate()
	assert.ErrorIs(t, err, ErrPathNotFound)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "cwd", cfgErr.Field)

	d.Cwd = d.Script
	assert.ErrorIs(t, d.Validate(), ErrPathNotFound)

	d.Cwd = "/nonexistent/workdir"
	assert.NoError(t, d.Validate(WithDeferredPathChecks()))
}

func TestValidate_InterpreterNotExecutable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses permission bits")
	}
	d := validDescriptor(t)
	plain := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(plain, []byte("x"), 0644))
	d.Interpreter = plain

	assert.ErrorIs(t, d.Validate(), ErrPathNotFound)
}

func TestValidate_BareInterpreterResolvedOnPath(t *testing.T) {
	d := validDescriptor(t)
	d.Interpreter = "sh"

	assert.NoError(t, d.Validate())
	assert.Equal(t, "sh", d.ToSpawnSpec().Executable)
}

func TestValidate_DirectoryScript(t *testing.T) {
	d := validDescriptor(t)
	d.Script = t.TempDir()

	assert.ErrorIs(t, d.Validate(), ErrPathNotFound)
}

func TestValidate_CreatesLogDirs(t *testing.T) {
	d := validDescriptor(t)
	_, err := os.Stat(filepath.Dir(d.LogFile))
	require.True(t, os.IsNotExist(err))

	require.NoError(t, d.Validate())

	info, err := os.Stat(filepath.Dir(d.LogFile))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestValidate_Unwritable(t *testing.T) {
	t.Run("ParentIsFile", func(t *testing.T) {
		d := validDescriptor(t)
		blocker := filepath.Join(t.TempDir(), "blocker")
		require.NoError(t, os.WriteFile(blocker, nil, 0644))
		d.OutFile = filepath.Join(blocker, "out.log")

		err := d.Validate()
		assert.ErrorIs(t, err, ErrUnwritable)
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, KindUnwritable, kind)
	})

	t.Run("MissingDirNotCreated", func(t *testing.T) {
		d := validDescriptor(t)
		assert.ErrorIs(t, d.Validate(WithoutCreateLogDirs()), ErrUnwritable)
	})

	t.Run("LogPathIsDirectory", func(t *testing.T) {
		d := validDescriptor(t)
		d.LogFile = t.TempDir()
		assert.ErrorIs(t, d.Validate(), ErrUnwritable)
	})

	t.Run("ReadOnlyDir", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root bypasses permission bits")
		}
		d := validDescriptor(t)
		dir := filepath.Join(t.TempDir(), "ro")
		require.NoError(t, os.Mkdir(dir, 0555))
		d.ErrorFile = filepath.Join(dir, "err.log")
		assert.ErrorIs(t, d.Validate(), ErrUnwritable)
	})
}

func TestValidate_DeferredPathChecks(t *testing.T) {
	d := validDescriptor(t)
	d.Script = "/nonexistent/uvicorn"

	assert.NoError(t, d.Validate(WithDeferredPathChecks()))

	// Field checks still apply
	d.Name = ""
	assert.ErrorIs(t, d.Validate(WithDeferredPathChecks()), ErrMalformed)
}

func TestConfigError_Message(t *testing.T) {
	err := newError(KindPathNotFound, "svc", "script", "/nonexistent/uvicorn", os.ErrNotExist)

	assert.Equal(t, `app "svc": path_not_found (script=/nonexistent/uvicorn): file does not exist`, err.Error())
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NotErrorIs(t, err, ErrMalformed)
}

func descriptorGen() *rapid.Generator[LaunchDescriptor] {
	path := rapid.StringMatching(`/[a-z0-9_]{1,8}(/[a-z0-9_.-]{1,8}){0,3}`)
	word := rapid.StringMatching(`[a-zA-Z0-9:._=-]{1,10}`)

	return rapid.Custom(func(t *rapid.T) LaunchDescriptor {
		words := rapid.SliceOfN(word, 0, 5).Draw(t, "args")
		args := ""
		for i, w := range words {
			if i > 0 {
				args += " "
			}
			args += w
		}

		env := rapid.MapOfN(
			rapid.StringMatching(`[A-Z][A-Z0-9_]{0,7}`),
			rapid.StringMatching(`[a-z0-9]{1,8}`),
			0, 3,
		).Draw(t, "env")
		if len(env) == 0 {
			env = nil
		}

		return LaunchDescriptor{
			Name:        rapid.StringMatching(`[A-Za-z][A-Za-z0-9_-]{0,15}`).Draw(t, "name"),
			Script:      path.Draw(t, "script"),
			Args:        args,
			Interpreter: rapid.SampledFrom([]string{"/usr/bin/python3", "/bin/sh", InterpreterNone}).Draw(t, "interpreter"),
			LogFile:     path.Draw(t, "log_file"),
			OutFile:     path.Draw(t, "out_file"),
			ErrorFile:   path.Draw(t, "error_file"),
			Cwd:         rapid.SampledFrom([]string{"", "/srv/app"}).Draw(t, "cwd"),
			Env:         env,
		}
	})
}

func TestProperty_SpawnSpecDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := descriptorGen().Draw(t, "descriptor")

		first := d.ToSpawnSpec()
		second := d.Clone().ToSpawnSpec()
		if !assert.ObjectsAreEqual(first, second) {
			t.Fatalf("spawn spec differs: %#v vs %#v", first, second)
		}
	})
}

func TestProperty_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := descriptorGen().Draw(t, "descriptor")
		format := rapid.SampledFrom([]Format{FormatYAML, FormatJSON, FormatTOML}).Draw(t, "format")

		data, err := Marshal(&Ecosystem{Apps: []LaunchDescriptor{d}}, format)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		eco, err := Parse(data, format)
		if err != nil {
			t.Fatalf("parse: %v\n%s", err, data)
		}
		if len(eco.Apps) != 1 {
			t.Fatalf("expected 1 app, got %d", len(eco.Apps))
		}
		if !assert.ObjectsAreEqual(d, eco.Apps[0]) {
			t.Fatalf("round trip mismatch:\n%#v\n%#v", d, eco.Apps[0])
		}
	})
}
