// Package find locates the USB serial device of the GPIB controller by
// walking /sys/class/tty.
package find

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SysRoot is prepended to the /sys paths; tests point it at a fake tree.
var SysRoot = "/"

type FilterFn func(*Usbtty) bool

// PrologixFilter matches the Prologix GPIB-USB controller, an FTDI part
// that reports its own product string.
func PrologixFilter(ut *Usbtty) bool {
	return strings.Contains(ut.Mfg, "Prologix") ||
		strings.Contains(ut.Prod, "GPIB-USB")
}

// ArduinoFilter matches AR488 controllers built on an Arduino.
func ArduinoFilter(ut *Usbtty) bool {
	return strings.Contains(ut.Mfg, "Arduino")
}

func SerialFilter(s string) FilterFn {
	return func(ut *Usbtty) bool { return ut.Serial == s }
}

// AnyFilter matches when any of fns does.
func AnyFilter(fns ...FilterFn) FilterFn {
	return func(ut *Usbtty) bool {
		for _, fn := range fns {
			if fn(ut) {
				return true
			}
		}
		return false
	}
}

// Find searches for a usb serial device and returns its /dev path. If
// filter is not nil, it is used to narrow choices down. The first device
// for which it returns true (if any) is chosen.
func Find(filter FilterFn) (string, error) {
	ttys, err := AllUsbTtys()
	if err != nil {
		return "", err
	}
	if filter != nil {
		var matched Usbttys
		for i := range ttys {
			if filter(&ttys[i]) {
				matched = Usbttys{ttys[i]}
				break
			}
		}
		ttys = matched
	}

	if len(ttys) == 0 {
		return "", fmt.Errorf("no matching ttys found")
	}
	if len(ttys) == 1 {
		return filepath.Join("/dev", ttys[0].Dev), nil
	}
	return "", fmt.Errorf("multiple ttys:\n%s", ttys)
}

type Usbtty struct {
	Dev, Path string
	IDp, IDv  string
	Mfg, Prod string
	Serial    string
}

func (u Usbtty) String() string {
	return fmt.Sprintf("dev %s path %s pid/vid %s/%s mfg/prod %s/%s serial %s", u.Dev, u.Path, u.IDp, u.IDv, u.Mfg, u.Prod, u.Serial)
}

type Usbttys []Usbtty

func (uts Usbttys) String() string {
	s := make([]string, 0, len(uts))
	for _, ut := range uts {
		s = append(s, ut.String())
	}
	return strings.Join(s, "\n")
}

// AllUsbTtys finds ttys on usb devices, by looking at /sys/class/tty and
// the device directories its symlinks point to.
func AllUsbTtys() (Usbttys, error) {
	var devs []Usbtty
	sct := filepath.Join(SysRoot, "sys/class/tty")
	entries, err := os.ReadDir(sct)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Type()&fs.ModeSymlink == 0 {
			// just in case there's anything in the dir that isn't a symlink
			continue
		}
		// we have a symlink like
		// /sys/class/tty/ttyUSB0 ->
		// /sys/devices/pci0000:00/0000:00:14.0/usb1/1-2/1-2:1.0/ttyUSB0/tty/ttyUSB0
		path := filepath.Join(sct, e.Name())
		abs, err := filepath.EvalSymlinks(path)
		if err != nil {
			continue
		}
		if !strings.Contains(abs, "usb") {
			continue
		}
		// device points at the interface (1-2:1.0); the usb device with the
		// descriptor strings is its parent
		dev, err := filepath.EvalSymlinks(filepath.Join(abs, "device"))
		if err != nil {
			continue
		}
		idP, idV, mfg, prod, serial, _ := readUsbInfo(usbDeviceDir(dev))
		devs = append(devs, Usbtty{
			Dev:    e.Name(),
			Path:   abs,
			IDp:    idP,
			IDv:    idV,
			Mfg:    mfg,
			Prod:   prod,
			Serial: serial,
		})
	}
	return devs, nil
}

// usbDeviceDir walks up from dev to the first directory carrying an
// idVendor file. FTDI ttys (ttyUSB) sit one level deeper than CDC ACM ones.
func usbDeviceDir(dev string) string {
	d := dev
	for i := 0; i < 3; i++ {
		d = filepath.Dir(d)
		if _, err := os.Stat(filepath.Join(d, "idVendor")); err == nil {
			return d
		}
	}
	return filepath.Dir(dev)
}

// reads prod and vendor ids, and mfg/product/serial strings
//
// returns last error encountered, ignoring os.ErrNotExist.
// errors do not prevent reading additional files or returning data collected.
func readUsbInfo(dev string) (idp, idv, mfg, prod, serial string, err error) {
	read := func(name string) string {
		b, rerr := os.ReadFile(filepath.Join(dev, name))
		if rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = rerr
		}
		return strings.TrimSpace(string(b))
	}
	idp = read("idProduct")
	idv = read("idVendor")
	mfg = read("manufacturer")
	prod = read("product")
	serial = read("serial")
	return idp, idv, mfg, prod, serial, err
}
