// Command hamamatsu is a console tool for Hamamatsu DCAM cameras:
// scan the bus, dump camera properties, run a quick acquisition.
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/gousb"
	log "github.com/sirupsen/logrus"
	"github.com/theckman/yacspin"

	"github.com/tiagocoutinho/hamamatsu/acquire"
	"github.com/tiagocoutinho/hamamatsu/dcam"
)

// Version is typically injected via ldflags with git build
var Version = "1"

// hamamatsuVID is the Hamamatsu Photonics USB vendor id.
const hamamatsuVID = gousb.ID(0x0661)

func usage() {
	fmt.Println(`hamamatsu - Hamamatsu DCAM camera console tool

Usage:
	hamamatsu <command> [flags]

Commands:
	scan      list connected cameras
	dump      print the property table of one camera
	acquire   acquire frames and log them
	version
	help

Run hamamatsu <command> -h for the flags of each command.`)
}

// openRegistry initializes the library, with a spinner because the
// vendor runtime can take several seconds to probe the bus.
func openRegistry(sim bool) (*dcam.Registry, error) {
	var api dcam.API
	if sim {
		api = dcam.NewSim(2)
	} else {
		var err error
		api, err = dcam.Native()
		if err != nil {
			return nil, err
		}
	}
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[11],
		Suffix:          " probing cameras",
		StopCharacter:   "✓",
		SuffixAutoColon: true,
	})
	if err == nil {
		spinner.Start()
		defer spinner.Stop()
	}
	reg := dcam.NewRegistry(api)
	if err := reg.Open(); err != nil {
		return nil, err
	}
	return reg, nil
}

func openDevice(sim bool, index int) (*dcam.Registry, *dcam.Device, error) {
	reg, err := openRegistry(sim)
	if err != nil {
		return nil, nil, err
	}
	dev, err := acquire.OpenDevice(reg, index)
	if err != nil {
		reg.Close()
		return nil, nil, err
	}
	return reg, dev, nil
}

func scan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	sim := fs.Bool("sim", false, "scan simulated cameras")
	usb := fs.Bool("usb", false, "also list Hamamatsu devices on the USB bus")
	fs.Parse(args)

	reg, err := openRegistry(*sim)
	if err != nil {
		return err
	}
	defer reg.Close()

	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tMODEL\tCAMERA ID\tBUS\tVERSION")
	for i := 0; i < reg.NumDevices(); i++ {
		dev, err := reg.Device(i)
		if err != nil {
			return err
		}
		if err := dev.Open(); err != nil {
			fmt.Fprintf(tw, "%d\t<%v>\t\t\t\n", i, err)
			continue
		}
		info, err := dev.Info()
		if err != nil {
			dev.Close()
			return err
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i,
			info[dcam.IDStrModel], info[dcam.IDStrCameraID],
			info[dcam.IDStrBus], info[dcam.IDStrCameraVersion])
		dev.Close()
	}
	tw.Flush()

	if *usb {
		listUSB()
	}
	return nil
}

// listUSB cross-lists raw USB devices carrying the Hamamatsu vendor id,
// which catches cameras the DCAM runtime did not claim.
func listUSB() {
	ctx := gousb.NewContext()
	defer ctx.Close()
	devs, err := ctx.OpenDevices(func(d *gousb.DeviceDesc) bool {
		return d.Vendor == hamamatsuVID
	})
	for _, d := range devs {
		defer d.Close()
	}
	if err != nil {
		log.WithError(err).Warn("USB enumeration incomplete")
	}
	if len(devs) == 0 {
		fmt.Println("\nno Hamamatsu devices on the USB bus")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "\nBUS\tADDR\tPRODUCT ID\tPRODUCT")
	for _, d := range devs {
		product, _ := d.Product()
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n",
			d.Desc.Bus, d.Desc.Address, d.Desc.Product, product)
	}
	tw.Flush()
}

func dump(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	sim := fs.Bool("sim", false, "use a simulated camera")
	index := fs.Int("camera", 0, "camera index")
	fs.Parse(args)

	reg, dev, err := openDevice(*sim, *index)
	if err != nil {
		return err
	}
	defer reg.Close()
	defer dev.Close()

	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVALUE\tUNIT\tTYPE\tACCESS\tRANGE")
	for _, c := range dev.Capabilities() {
		value := ""
		if c.Readable() {
			if v, err := c.Read(); err == nil {
				value = c.Format(v)
			}
		}
		access := ""
		if c.Readable() {
			access += "r"
		}
		if c.Writable() {
			access += "w"
		}
		rng := ""
		if c.Min != 0 || c.Max != 0 {
			rng = fmt.Sprintf("%g..%g", c.Min, c.Max)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Name, value, c.Unit, c.DTypeName(), access, rng)
	}
	return tw.Flush()
}

func acquireCmd(args []string) error {
	fs := flag.NewFlagSet("acquire", flag.ExitOnError)
	sim := fs.Bool("sim", false, "use a simulated camera")
	index := fs.Int("camera", 0, "camera index")
	n := fs.Int("n", 10, "number of frames, 0 for continuous until interrupted")
	exposure := fs.Duration("e", 10*time.Millisecond, "exposure time")
	fs.Parse(args)

	reg, dev, err := openDevice(*sim, *index)
	if err != nil {
		return err
	}
	defer reg.Close()
	defer dev.Close()

	if _, err := dev.SetExposureTime(*exposure); err != nil {
		return err
	}
	sink := acquire.FrameSinkFunc(func(seq int, frame *dcam.Frame) error {
		log.WithFields(log.Fields{
			"seq":        seq,
			"slot":       frame.Index,
			"framestamp": frame.Framestamp,
			"size":       fmt.Sprintf("%dx%d", frame.Width, frame.Height),
		}).Info("frame")
		return nil
	})
	session, err := acquire.Start(dev, sink, acquire.Config{NFrames: *n})
	if err != nil {
		return err
	}
	if err := session.Wait(); err != nil {
		return err
	}
	log.Infof("acquired %d frame(s)", session.AcquiredFrames())
	return nil
}

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	var err error
	switch os.Args[1] {
	case "scan":
		err = scan(os.Args[2:])
	case "dump":
		err = dump(os.Args[2:])
	case "acquire":
		err = acquireCmd(os.Args[2:])
	case "version":
		fmt.Printf("hamamatsu version %v\n", Version)
	case "help", "-h", "--help":
		usage()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}
