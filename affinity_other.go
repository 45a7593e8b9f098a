//go:build !linux

package rhea

// applyThreadAffinity is a no-op on platforms without thread affinity
// control; settings still steer queue selection.
func applyThreadAffinity(s AffinitySettings) (func(), error) {
	return func() {}, nil
}

// pinToCluster is a no-op on platforms without thread affinity control.
func pinToCluster(cluster DeviceClass, workerID int) {}
