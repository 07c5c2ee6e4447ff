// Package checkpoint implements the trainer's checkpoint file format.
//
// # File Structure
//
//	[64-byte fixed header]
//	  0x00-0x03: magic "CKPT"
//	  0x04-0x07: format version (uint32, little-endian)
//	  0x08-0x0B: flags (uint32)
//	  0x0C-0x0F: reserved
//	  0x10-0x17: JSON header size (uint64)
//	  0x18-0x1F: data section size (uint64)
//	  0x20-0x3F: SHA-256 of the data section
//	[JSON header]
//	[zero padding to a 64-byte boundary]
//	[tensor data]
//
// The JSON header lists every tensor (name, dtype, shape, offset, size)
// and describes how they map to model parameters and learner state, plus
// trainer progress and free-form metadata.
//
// Files are written to a temporary name and renamed into place, so a reader
// never observes a partially written checkpoint. Loading verifies magic,
// version, sizes, the tensor table and the checksum before anything is
// returned.
package checkpoint
