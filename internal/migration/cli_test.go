package migration

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubMigrator 只记录调用，版本信息由测试设置
type stubMigrator struct {
	info  MigrationInfo
	calls []string
}

func (s *stubMigrator) Up(context.Context) error      { s.calls = append(s.calls, "up"); return nil }
func (s *stubMigrator) Down(context.Context) error    { s.calls = append(s.calls, "down"); return nil }
func (s *stubMigrator) DownAll(context.Context) error { s.calls = append(s.calls, "down_all"); return nil }
func (s *stubMigrator) Steps(context.Context, int) error {
	s.calls = append(s.calls, "steps")
	return nil
}
func (s *stubMigrator) Goto(context.Context, uint) error {
	s.calls = append(s.calls, "goto")
	return nil
}
func (s *stubMigrator) Force(_ context.Context, v int) error {
	s.calls = append(s.calls, "force")
	s.info.CurrentVersion = uint(v)
	s.info.Dirty = false
	return nil
}
func (s *stubMigrator) Version(context.Context) (uint, bool, error) {
	return s.info.CurrentVersion, s.info.Dirty, nil
}
func (s *stubMigrator) Status(context.Context) ([]MigrationStatus, error) { return nil, nil }
func (s *stubMigrator) Info(context.Context) (*MigrationInfo, error) {
	info := s.info
	return &info, nil
}
func (s *stubMigrator) Close() error { return nil }

func TestCLI_DirtySchemaBlocksMovement(t *testing.T) {
	stub := &stubMigrator{info: MigrationInfo{CurrentVersion: 2, Dirty: true}}
	cli := NewCLI(stub)
	cli.SetOutput(&bytes.Buffer{})
	ctx := context.Background()

	for name, run := range map[string]func() error{
		"up":    func() error { return cli.RunUp(ctx) },
		"down":  func() error { return cli.RunDown(ctx) },
		"reset": func() error { return cli.RunReset(ctx) },
		"steps": func() error { return cli.RunSteps(ctx, 1) },
		"goto":  func() error { return cli.RunGoto(ctx, 1) },
	} {
		err := run()
		require.Error(t, err, name)
		assert.Contains(t, err.Error(), "dirty at version 2", name)
	}
	assert.Empty(t, stub.calls)

	// force 清除 dirty 后可以继续
	require.NoError(t, cli.RunForce(ctx, 1))
	require.NoError(t, cli.RunDown(ctx))
	assert.Equal(t, []string{"force", "down"}, stub.calls)
}

func TestCLI_DownAtZeroIsNoop(t *testing.T) {
	stub := &stubMigrator{}
	var out bytes.Buffer
	cli := NewCLI(stub)
	cli.SetOutput(&out)

	require.NoError(t, cli.RunDown(context.Background()))
	assert.Contains(t, out.String(), "Nothing to roll back")
	assert.Empty(t, stub.calls)
}

func TestCLI_StepsZeroRejected(t *testing.T) {
	cli := NewCLI(&stubMigrator{})
	assert.Error(t, cli.RunSteps(context.Background(), 0))
}

func TestCLI_VersionDirty(t *testing.T) {
	var out bytes.Buffer
	cli := NewCLI(&stubMigrator{info: MigrationInfo{CurrentVersion: 1, Dirty: true}})
	cli.SetOutput(&out)

	require.NoError(t, cli.RunVersion(context.Background()))
	assert.Equal(t, "Current version: 1 (dirty)\n", out.String())
}
