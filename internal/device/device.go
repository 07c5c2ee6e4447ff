// Package device resolves the compute device a trainer step runs on.
//
// A Descriptor is an opaque, equality-comparable selector. The process-wide
// default is discovered once and frozen the first time it is used, after
// which TrySetDefault refuses to change it.
package device

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/naresrac/CNTK/internal/tensor"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrDevice is returned when a device cannot be resolved or used.
var ErrDevice = errors.New("device error")

// Descriptor selects a compute device by kind and ordinal.
type Descriptor struct {
	Kind tensor.Device
	ID   int
}

// CPU returns the host CPU descriptor.
func CPU() Descriptor {
	return Descriptor{Kind: tensor.CPU}
}

// GPU returns the descriptor of the CUDA device with the given ordinal.
func GPU(id int) Descriptor {
	return Descriptor{Kind: tensor.CUDA, ID: id}
}

// String formats the descriptor as "CPU" or "CUDA:1".
func (d Descriptor) String() string {
	if d.Kind == tensor.CPU {
		return d.Kind.String()
	}
	return fmt.Sprintf("%s:%d", d.Kind, d.ID)
}

// Parse is the inverse of String, ignoring case; "gpu" stands for CUDA.
// A missing ordinal means 0.
func Parse(s string) (Descriptor, error) {
	kindStr, idStr, hasID := strings.Cut(strings.TrimSpace(s), ":")
	if strings.EqualFold(kindStr, "gpu") {
		kindStr = tensor.CUDA.String()
	}
	kind, ok := tensor.ParseDevice(kindStr)
	if !ok {
		return Descriptor{}, errors.Wrapf(ErrDevice, "unknown device kind %q", kindStr)
	}
	d := Descriptor{Kind: kind}
	if hasID {
		id, err := strconv.Atoi(idStr)
		if err != nil || id < 0 {
			return Descriptor{}, errors.Wrapf(ErrDevice, "invalid device ordinal %q", idStr)
		}
		d.ID = id
	}
	if d.Kind == tensor.CPU && d.ID != 0 {
		return Descriptor{}, errors.Wrapf(ErrDevice, "CPU has no ordinal, got %d", d.ID)
	}
	return d, nil
}

var (
	discoverOnce sync.Once
	discovered   Descriptor

	defaultMu  sync.Mutex
	defaultDev *Descriptor
	frozen     bool
)

// discover picks the best device of the process. Only the host CPU is
// detected here; accelerators are reported by engines through Resolve.
func discover() Descriptor {
	discoverOnce.Do(func() {
		discovered = CPU()
		info := CPUInfo()
		klog.V(1).Infof("default device %s: %s (%d logical cores)", discovered, info.Brand, info.LogicalCores)
	})
	return discovered
}

// UseDefault returns the process default device and freezes it.
func UseDefault() Descriptor {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	frozen = true
	if defaultDev != nil {
		return *defaultDev
	}
	d := discover()
	defaultDev = &d
	return d
}

// TrySetDefault changes the process default device. It returns false, and
// changes nothing, once the default has been used.
func TrySetDefault(d Descriptor) bool {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if frozen {
		return false
	}
	defaultDev = &d
	return true
}

// Resolve picks the device for one call: requested if non-nil, otherwise the
// process default. The result must be one of supported; an empty supported
// list means CPU only.
func Resolve(requested *Descriptor, supported []Descriptor) (Descriptor, error) {
	var d Descriptor
	if requested != nil {
		d = *requested
	} else {
		d = UseDefault()
	}
	if len(supported) == 0 {
		supported = []Descriptor{CPU()}
	}
	for _, s := range supported {
		if s == d {
			return d, nil
		}
	}
	return Descriptor{}, errors.Wrapf(ErrDevice, "device %s is not available (available: %s)", d, joinDescriptors(supported))
}

func joinDescriptors(ds []Descriptor) string {
	parts := make([]string, len(ds))
	for i, d := range ds {
		parts[i] = d.String()
	}
	return strings.Join(parts, ", ")
}
