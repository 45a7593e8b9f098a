package rhea

import (
	"os"
	"runtime"
)

// AffinityCores selects which clusters an affinity setting allows.
type AffinityCores int

const (
	// CoresAll allows both clusters.
	CoresAll AffinityCores = iota
	// CoresBig restricts to the performance cluster.
	CoresBig
	// CoresLittle restricts to the efficiency cluster.
	CoresLittle
)

// AffinityMode decides how strongly big/little task hints bind.
type AffinityMode int

const (
	// AffinityAllowLocal lets hints bias dispatch without constraining it:
	// a starving worker may take work hinted at the other cluster.
	AffinityAllowLocal AffinityMode = iota
	// AffinityOverrideLocal makes hints binding: hinted work only runs on
	// workers of the matching cluster.
	AffinityOverrideLocal
)

// AffinitySettings is the process-wide affinity request.
type AffinitySettings struct {
	Cores AffinityCores
	Pin   bool
	Mode  AffinityMode
}

// defaultAffinity honors the EnvAffinity override.
func defaultAffinity() *AffinitySettings {
	s := &AffinitySettings{Cores: CoresAll, Mode: AffinityAllowLocal}
	switch os.Getenv(EnvAffinity) {
	case "big":
		s.Cores = CoresBig
		s.Mode = AffinityOverrideLocal
	case "little":
		s.Cores = CoresLittle
		s.Mode = AffinityOverrideLocal
	}
	return s
}

// SetAffinity installs process-wide affinity settings.
func SetAffinity(s AffinitySettings) error {
	rt := currentRuntime()
	if rt == nil {
		return ErrNotRunning
	}
	cp := s
	rt.affinity.Store(&cp)
	return nil
}

// ResetAffinity restores the default settings.
func ResetAffinity() error {
	rt := currentRuntime()
	if rt == nil {
		return ErrNotRunning
	}
	rt.affinity.Store(defaultAffinity())
	return nil
}

// GetAffinity reports the current settings.
func GetAffinity() AffinitySettings {
	rt := currentRuntime()
	if rt == nil {
		return *defaultAffinity()
	}
	return *rt.affinity.Load()
}

// ExecuteOn runs fn synchronously on the calling goroutine while enforcing
// the given settings on its OS thread, restoring the previous thread
// affinity on all exit paths.
func ExecuteOn(s AffinitySettings, fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	restore, err := applyThreadAffinity(s)
	if err != nil {
		return err
	}
	defer restore()
	return fn()
}
