package initd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookPointString(t *testing.T) {
	tests := []struct {
		point HookPoint
		want  string
	}{
		{HookBanner, "hook/sys/banner"},
		{HookRootfsUp, "hook/mount/root"},
		{HookMountError, "hook/mount/error"},
		{HookMountPost, "hook/mount/post"},
		{HookBasefsUp, "hook/mount/all"},
		{HookNetworkUp, "hook/net/up"},
		{HookSvcPlugin, "hook/svc/plugin"},
		{HookSvcUp, "hook/svc/up"},
		{HookSystemUp, "hook/sys/up"},
		{HookSvcReconf, "hook/svc/reconf"},
		{HookRunlevelChange, "hook/sys/runlevel"},
		{HookNetworkDown, "hook/net/down"},
		{HookShutdown, "hook/sys/shutdown"},
		{HookCount, "hook/unknown"},
		{HookPoint(-1), "hook/unknown"},
	}

	for _, tt := range tests {
		if got := tt.point.String(); got != tt.want {
			t.Errorf("HookPoint(%d).String() = %q, want %q", int(tt.point), got, tt.want)
		}
	}
}

func TestRunHookOrderAndArgs(t *testing.T) {
	r := NewRegistry()

	var calls []string
	record := func(name string) HookFunc {
		return func(arg any) {
			calls = append(calls, name+":"+arg.(string))
		}
	}

	var a, b, c Plugin
	a.Name = "a"
	a.Hooks[HookSvcUp] = Hook{Fn: record("a"), Arg: "default-a"}
	b.Name = "b"
	b.Hooks[HookShutdown] = Hook{Fn: record("b"), Arg: "default-b"}
	c.Name = "c"
	c.Hooks[HookSvcUp] = Hook{Fn: record("c"), Arg: "default-c"}

	for _, p := range []*Plugin{&a, &b, &c} {
		require.NoError(t, r.Register(p))
	}

	r.RunHooks(HookSvcUp)
	assert.Equal(t, []string{"a:default-a", "c:default-c"}, calls)

	calls = nil
	r.RunHook(HookSvcUp, "explicit")
	assert.Equal(t, []string{"a:explicit", "c:explicit"}, calls)

	assert.True(t, r.HookExists(HookShutdown))
	assert.False(t, r.HookExists(HookBanner))
	assert.False(t, r.HookExists(HookCount))
}

func TestRunHookTypedNilUsesDefault(t *testing.T) {
	type banner struct{ text string }

	r := NewRegistry()
	var got any
	var p Plugin
	p.Name = "banner"
	p.Hooks[HookBanner] = Hook{Fn: func(arg any) { got = arg }, Arg: &banner{text: "default"}}
	require.NoError(t, r.Register(&p))

	r.RunHook(HookBanner, (*banner)(nil))
	require.IsType(t, &banner{}, got)
	assert.Equal(t, "default", got.(*banner).text)

	r.RunHook(HookBanner, &banner{text: "explicit"})
	assert.Equal(t, "explicit", got.(*banner).text)

	// Zero values that are not nil-able pass through
	r.RunHook(HookBanner, 0)
	assert.Equal(t, 0, got)
}

func TestRunHookSignalsConditionAndSteps(t *testing.T) {
	conds := NewMemStore()
	services := NewServiceTable()
	r := NewRegistry(WithConditions(conds), WithServices(services))

	// Before the threshold no condition is signalled
	r.RunHooks(HookBanner)
	r.RunHooks(HookRootfsUp)
	assert.Equal(t, CondOff, conds.Get(HookBanner.String()))
	assert.Equal(t, CondOff, conds.Get(HookRootfsUp.String()))
	assert.Equal(t, 2, services.Steps())

	for p := HookCondThreshold; p < HookCount; p++ {
		r.RunHooks(p)
		assert.Equal(t, CondOn, conds.Get(p.String()), p.String())
		assert.True(t, conds.Oneshot(p.String()))
	}
	assert.Equal(t, 2+int(HookCount-HookCondThreshold), services.Steps())
}

func TestRunHookStepsServicesAndTasks(t *testing.T) {
	var stepped []string
	services := NewServiceTable(WithStepper(func(s *Service) {
		stepped = append(stepped, s.Name)
	}))
	for _, s := range []*Service{
		{Name: "svc", Type: TypeService},
		{Name: "task", Type: TypeTask},
		{Name: "run", Type: TypeRun},
		{Name: "rc", Type: TypeSysv},
	} {
		require.NoError(t, services.Add(s))
	}

	r := NewRegistry(WithServices(services))
	r.RunHooks(HookSystemUp)

	assert.Equal(t, []string{"svc", "task", "run"}, stepped)
}

func TestRunHookRecoversPanic(t *testing.T) {
	r := NewRegistry()

	ran := false
	var bad, good Plugin
	bad.Name = "bad"
	bad.Hooks[HookSvcReconf] = Hook{Fn: func(any) { panic("broken plugin") }}
	good.Name = "good"
	good.Hooks[HookSvcReconf] = Hook{Fn: func(any) { ran = true }}
	require.NoError(t, r.Register(&bad))
	require.NoError(t, r.Register(&good))

	assert.NotPanics(t, func() { r.RunHooks(HookSvcReconf) })
	assert.True(t, ran)
}

func TestRunHookInvalidPoint(t *testing.T) {
	services := NewServiceTable()
	r := NewRegistry(WithServices(services))

	r.RunHooks(HookCount)
	assert.Zero(t, services.Steps())
}

func TestHookRegistersPlugin(t *testing.T) {
	r := NewRegistry()

	late := &Plugin{Name: "late"}
	late.Hooks[HookSvcPlugin] = Hook{Fn: func(any) { t.Error("registered during dispatch, must not run") }}

	var early Plugin
	early.Name = "early"
	early.Hooks[HookSvcPlugin] = Hook{Fn: func(any) { _ = r.Register(late) }}
	require.NoError(t, r.Register(&early))

	r.RunHooks(HookSvcPlugin)
	assert.Equal(t, 2, r.Len())
}

func TestPluginHookNames(t *testing.T) {
	var p Plugin
	p.Hooks[HookBasefsUp] = Hook{Fn: noop}
	p.Hooks[HookSvcReconf] = Hook{Fn: noop}
	assert.Equal(t, []string{"hook/mount/all", "hook/svc/reconf"}, p.HookNames())
	assert.False(t, p.HasIO())
}
