package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyCarrier-DevOps/refspan/internal/adapters/output"
	"github.com/MyCarrier-DevOps/refspan/internal/domain"
)

const (
	shaOld = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	shaNew = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

// nopLogger implements Logger and discards everything.
type nopLogger struct{}

func (l *nopLogger) Info(_ context.Context, _ string, _ map[string]interface{})           {}
func (l *nopLogger) Debug(_ context.Context, _ string, _ map[string]interface{})          {}
func (l *nopLogger) Warn(_ context.Context, _ string, _ map[string]interface{})           {}
func (l *nopLogger) Error(_ context.Context, _ string, _ error, _ map[string]interface{}) {}

// stubGraph satisfies domain.GraphStore; the command only passes it through
// to the factories, so the methods are never reached in these tests.
type stubGraph struct{}

func (s *stubGraph) ResolveRef(_ context.Context, _ string) (domain.CommitID, error) {
	return "", domain.ErrRefNotFound
}

func (s *stubGraph) TypeOf(_ context.Context, _ domain.CommitID) (domain.ObjectType, error) {
	return domain.ObjectUnknown, nil
}

func (s *stubGraph) ReachableFrom(_ context.Context, _, _ []domain.CommitID) ([]domain.CommitID, error) {
	return nil, nil
}

func (s *stubGraph) ListTips(_ context.Context, _ domain.RefKind) ([]domain.Tip, error) {
	return nil, nil
}

func (s *stubGraph) NearestTag(_ context.Context, _ domain.CommitID, _ domain.DescribeOptions) (string, error) {
	return "", domain.ErrNoTagFound
}

func (s *stubGraph) Close() error { return nil }

// stubResolver answers per ref name.
type stubResolver struct {
	outputs map[string]*domain.ResolveOutput
	errs    map[string]error
	inputs  []domain.ResolveInput
}

func (s *stubResolver) Resolve(_ context.Context, input domain.ResolveInput) (*domain.ResolveOutput, error) {
	s.inputs = append(s.inputs, input)
	if err, ok := s.errs[input.Event.RefName]; ok {
		return nil, err
	}
	if out, ok := s.outputs[input.Event.RefName]; ok {
		return out, nil
	}
	return &domain.ResolveOutput{Event: input.Event, Kind: input.Event.Kind()}, nil
}

// stubDescriber records what it was asked to describe.
type stubDescriber struct {
	calls []domain.CommitID
}

func (s *stubDescriber) Describe(_ context.Context, id domain.CommitID, _ domain.DescribeOptions) string {
	s.calls = append(s.calls, id)
	return "v1.0.0-1-g" + id.Short()
}

// stubSerial counts invocations.
type stubSerial struct {
	next uint64
	err  error
}

func (s *stubSerial) Next(_ context.Context) (uint64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.next++
	return s.next, nil
}

// nopLocker satisfies domain.Locker for wiring.
type nopLocker struct{}

func (n *nopLocker) Acquire(_ context.Context) error { return nil }
func (n *nopLocker) Release() error                  { return nil }
func (n *nopLocker) Held() bool                      { return false }

type testHarness struct {
	deps      *Dependencies
	resolver  *stubResolver
	describer *stubDescriber
	serial    *stubSerial
	stdout    *bytes.Buffer
	stderr    *bytes.Buffer
}

func newHarness(stdin io.Reader) *testHarness {
	h := &testHarness{
		resolver:  &stubResolver{},
		describer: &stubDescriber{},
		serial:    &stubSerial{},
		stdout:    &bytes.Buffer{},
		stderr:    &bytes.Buffer{},
	}
	h.deps = &Dependencies{
		LoggerFactory: func() Logger { return &nopLogger{} },
		ConfigLoader: func() (*AppConfig, error) {
			return &AppConfig{LockDir: "l", SerialFile: "s"}, nil
		},
		GraphStoreFactory: func(_ string, _ Logger) (domain.GraphStore, error) {
			return &stubGraph{}, nil
		},
		LockerFactory: func(_ *AppConfig, _ Logger) domain.Locker { return &nopLocker{} },
		SerialFactory: func(_ *AppConfig, _ domain.Locker, _ Logger) domain.SerialCounter {
			return h.serial
		},
		ResolverFactory:  func(_ domain.GraphStore, _ Logger) domain.Resolver { return h.resolver },
		DescriberFactory: func(_ domain.GraphStore, _ Logger) domain.Describer { return h.describer },
		OutputWriterFactory: func(out io.Writer) domain.OutputWriter {
			return output.NewWriterWithOutput(out)
		},
		Stdin:  stdin,
		Stdout: h.stdout,
		Stderr: h.stderr,
	}
	return h
}

func runCommand(t *testing.T, h *testHarness, args ...string) error {
	t.Helper()
	cmd := NewRootCmdWithDeps(h.deps)
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.Execute()
}

func TestRootCmd_SingleEventFromArgs(t *testing.T) {
	h := newHarness(strings.NewReader(""))
	h.resolver.outputs = map[string]*domain.ResolveOutput{
		"refs/heads/main": {
			Kind:    domain.KindUpdate,
			Commits: []domain.CommitID{shaNew},
		},
	}

	err := runCommand(t, h, "refs/heads/main", shaOld, shaNew)

	require.NoError(t, err)
	assert.Equal(t, shaNew+"\n", h.stdout.String())
	require.Len(t, h.resolver.inputs, 1)
	assert.Equal(t, domain.UpdateEvent{
		RefName: "refs/heads/main",
		OldID:   shaOld,
		NewID:   shaNew,
	}, h.resolver.inputs[0].Event)
}

func TestRootCmd_BatchFromStdin(t *testing.T) {
	stdin := strings.NewReader(
		shaOld + " " + shaNew + " refs/heads/main\n" +
			"\n" + // blank lines are skipped
			shaOld + " " + shaNew + " refs/heads/dev\n")
	h := newHarness(stdin)

	err := runCommand(t, h)

	require.NoError(t, err)
	require.Len(t, h.resolver.inputs, 2)
	assert.Equal(t, "refs/heads/main", h.resolver.inputs[0].Event.RefName)
	assert.Equal(t, "refs/heads/dev", h.resolver.inputs[1].Event.RefName)
}

func TestRootCmd_BatchIsolatesFailures(t *testing.T) {
	stdin := strings.NewReader(
		shaOld + " " + shaNew + " refs/heads/broken\n" +
			shaOld + " " + shaNew + " refs/heads/ok\n")
	h := newHarness(stdin)
	h.resolver.errs = map[string]error{
		"refs/heads/broken": fmt.Errorf("%w: gone", domain.ErrGraphLookup),
	}
	h.resolver.outputs = map[string]*domain.ResolveOutput{
		"refs/heads/ok": {Kind: domain.KindUpdate, Commits: []domain.CommitID{shaNew}},
	}

	err := runCommand(t, h)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 ref updates failed")
	// The healthy ref was still processed and written.
	require.Len(t, h.resolver.inputs, 2)
	assert.Equal(t, shaNew+"\n", h.stdout.String())
	assert.Contains(t, h.stderr.String(), "refs/heads/broken")
}

func TestRootCmd_MalformedStdinLine(t *testing.T) {
	h := newHarness(strings.NewReader("just-two fields\n"))

	err := runCommand(t, h)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed post-receive line")
}

func TestRootCmd_RangeFormat(t *testing.T) {
	h := newHarness(strings.NewReader(""))
	h.resolver.outputs = map[string]*domain.ResolveOutput{
		"refs/heads/main": {
			Kind: domain.KindUpdate,
			Range: domain.RevisionRange{
				{ID: shaNew},
				{ID: shaOld, Negated: true},
			},
			Commits: []domain.CommitID{shaNew},
		},
	}

	err := runCommand(t, h, "--format", "range", "refs/heads/main", shaOld, shaNew)

	require.NoError(t, err)
	assert.Equal(t, shaNew+"\n^"+shaOld+"\n", h.stdout.String())
}

func TestRootCmd_UnknownFormat(t *testing.T) {
	h := newHarness(strings.NewReader(""))

	err := runCommand(t, h, "--format", "xml", "refs/heads/main", shaOld, shaNew)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestRootCmd_DescribeLogsDescriptor(t *testing.T) {
	h := newHarness(strings.NewReader(""))
	h.resolver.outputs = map[string]*domain.ResolveOutput{
		"refs/heads/main": {
			Kind:        domain.KindUpdate,
			OperativeID: shaNew,
		},
	}

	err := runCommand(t, h, "--describe", "refs/heads/main", shaOld, shaNew)

	require.NoError(t, err)
	require.Len(t, h.describer.calls, 1)
	assert.Equal(t, domain.CommitID(shaNew), h.describer.calls[0])
}

func TestRootCmd_SerialBump(t *testing.T) {
	h := newHarness(strings.NewReader(""))

	err := runCommand(t, h, "--serial", "refs/heads/main", shaOld, shaNew)

	require.NoError(t, err)
	assert.Equal(t, uint64(1), h.serial.next)
}

func TestRootCmd_SerialLockBusy(t *testing.T) {
	h := newHarness(strings.NewReader(""))
	h.serial.err = domain.ErrLockBusy

	err := runCommand(t, h, "--serial", "refs/heads/main", shaOld, shaNew)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLockBusy)
	assert.Contains(t, err.Error(), "another hook invocation holds the lock")
}

func TestRootCmd_WrongArgCount(t *testing.T) {
	h := newHarness(strings.NewReader(""))

	err := runCommand(t, h, "refs/heads/main", shaOld)

	require.Error(t, err)
}

func TestRootCmd_NotARepository(t *testing.T) {
	h := newHarness(strings.NewReader(""))
	h.deps.GraphStoreFactory = func(path string, _ Logger) (domain.GraphStore, error) {
		return nil, fmt.Errorf("%w: %s", domain.ErrRepositoryNotFound, path)
	}

	err := runCommand(t, h, "refs/heads/main", shaOld, shaNew)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a git repository")
}

func TestRootCmd_NilDependencies(t *testing.T) {
	cmd := NewRootCmdWithDeps(nil)
	cmd.SetArgs([]string{"refs/heads/main", shaOld, shaNew})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependencies not configured")
}

func TestRootCmd_ConfigLoaderFailure(t *testing.T) {
	h := newHarness(strings.NewReader(""))
	h.deps.ConfigLoader = func() (*AppConfig, error) {
		return nil, errors.New("bad policy")
	}

	err := runCommand(t, h, "refs/heads/main", shaOld, shaNew)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration error")
}

func TestRootCmd_EmptyStdinIsNoOp(t *testing.T) {
	h := newHarness(strings.NewReader(""))

	err := runCommand(t, h)

	require.NoError(t, err)
	assert.Empty(t, h.stdout.String())
	assert.Empty(t, h.resolver.inputs)
}
