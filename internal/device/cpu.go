package device

import (
	"github.com/klauspost/cpuid/v2"
)

// CPUDescription summarizes the host processor.
type CPUDescription struct {
	Brand         string
	Vendor        string
	PhysicalCores int
	LogicalCores  int
	// SIMD is true when AVX2 and FMA3 are available.
	SIMD     bool
	Features []string
}

// CPUInfo describes the host CPU as detected by cpuid.
func CPUInfo() CPUDescription {
	return CPUDescription{
		Brand:         cpuid.CPU.BrandName,
		Vendor:        cpuid.CPU.VendorString,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		SIMD:          cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3),
		Features:      cpuid.CPU.FeatureSet(),
	}
}
