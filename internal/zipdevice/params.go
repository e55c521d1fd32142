package zipdevice

import (
	"fmt"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
)

// DebugBit names a bit of the "Debug" device parameter.
type DebugBit int

const (
	DebugListOpenFiles DebugBit = 1 << iota
	DebugTraceFlush
)

// Params holds the device parameter surface. Filename and DataSource
// are mutually exclusive and settable at most once per mount; Set
// enforces that and checks every other parameter's value type.
type Params struct {
	Filename    string
	DataSource  string
	CheckCRC32  bool
	IgnoreCase  bool
	OpenPackage bool
	Streamed    bool
	ReadOnly    bool
	ZIP64Files  bool
	ArchiveName string
	Flush       bool
	Close       bool
	Debug       int

	filenameSet   bool
	dataSourceSet bool
}

// Set applies one named parameter. value is the caller's
// already-decoded Go value (string/bool/int); CLI and HTTP front ends
// are responsible for parsing their own wire representation into
// these.
func (p *Params) Set(name string, value interface{}) error {
	switch name {
	case "Filename":
		if p.dataSourceSet {
			return ripfs.E(ripfs.InvalidArgument, "params.set", fmt.Errorf("Filename and DataSource are mutually exclusive"))
		}
		if p.filenameSet {
			return ripfs.E(ripfs.InvalidArgument, "params.set", fmt.Errorf("Filename already set"))
		}
		s, ok := value.(string)
		if !ok {
			return typeErr(name, "string")
		}
		p.Filename = s
		p.filenameSet = true
	case "DataSource":
		if p.filenameSet {
			return ripfs.E(ripfs.InvalidArgument, "params.set", fmt.Errorf("Filename and DataSource are mutually exclusive"))
		}
		if p.dataSourceSet {
			return ripfs.E(ripfs.InvalidArgument, "params.set", fmt.Errorf("DataSource already set"))
		}
		s, ok := value.(string)
		if !ok {
			return typeErr(name, "string")
		}
		p.DataSource = s
		p.dataSourceSet = true
	case "CheckCRC32":
		return setBool(&p.CheckCRC32, name, value)
	case "IgnoreCase":
		return setBool(&p.IgnoreCase, name, value)
	case "OpenPackage":
		return setBool(&p.OpenPackage, name, value)
	case "Streamed":
		return setBool(&p.Streamed, name, value)
	case "ReadOnly":
		return setBool(&p.ReadOnly, name, value)
	case "ZIP64Files":
		return setBool(&p.ZIP64Files, name, value)
	case "ArchiveName":
		s, ok := value.(string)
		if !ok {
			return typeErr(name, "string")
		}
		p.ArchiveName = s
	case "Flush":
		return setBool(&p.Flush, name, value)
	case "Close":
		return setBool(&p.Close, name, value)
	case "Debug":
		i, ok := value.(int)
		if !ok {
			return typeErr(name, "int")
		}
		p.Debug = i
	case "Type":
		return ripfs.E(ripfs.AccessDenied, "params.set", fmt.Errorf("Type is read-only"))
	default:
		return ripfs.E(ripfs.InvalidArgument, "params.set", fmt.Errorf("unknown parameter %q", name))
	}
	return nil
}

func setBool(dst *bool, name string, value interface{}) error {
	b, ok := value.(bool)
	if !ok {
		return typeErr(name, "bool")
	}
	*dst = b
	return nil
}

func typeErr(name, want string) error {
	return ripfs.E(ripfs.InvalidArgument, "params.set", fmt.Errorf("%s expects a %s", name, want))
}

// SetParam is the device-facing entry point. Filename, DataSource,
// CheckCRC32, IgnoreCase and OpenPackage are read by Mount, which
// leaves an already-attached archive as it is, so they take effect on
// the first Mount or on a Mount after Close; Flush and Close are
// applied immediately.
func (d *Device) SetParam(name string, value interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.params.Set(name, value); err != nil {
		return err
	}
	switch name {
	case "Flush":
		if d.params.Flush && d.archive != nil {
			d.archive.FlushAll()
		}
	case "Close":
		if d.params.Close {
			d.archive = nil
		}
	}
	return nil
}
