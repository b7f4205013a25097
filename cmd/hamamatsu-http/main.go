// Command hamamatsu-http exposes control of Hamamatsu DCAM cameras over
// HTTP.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	yml "gopkg.in/yaml.v2"

	"github.com/tiagocoutinho/hamamatsu/acquire"
	"github.com/tiagocoutinho/hamamatsu/dcam"
	"github.com/tiagocoutinho/hamamatsu/httpd"
)

var (
	// Version is the version number.  Typically injected via ldflags
	// with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "hamamatsu-http.yml"
	k              = koanf.New(".")
)

type config struct {
	Addr        string                 `yaml:"Addr"`
	Root        string                 `yaml:"Root"`
	CameraIndex int                    `yaml:"CameraIndex"`
	Sim         bool                   `yaml:"Sim"`
	BootupProps map[string]interface{} `yaml:"BootupProps"`
}

func setupconfig() {
	k.Load(structs.Provider(config{
		Addr:        ":8000",
		Root:        "/",
		CameraIndex: 0,
		Sim:         false,
		BootupProps: map[string]interface{}{
			"exposure_time":  0.01,
			"trigger_source": "INTERNAL",
		}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `hamamatsu-http exposes control of Hamamatsu DCAM cameras over HTTP.
This enables a server-client architecture,
and the clients can leverage the excellent HTTP
libraries for any programming language,
instead of custom socket logic.

Usage:
	hamamatsu-http <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `hamamatsu-http is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

When no configuration is provided, the defaults are used.
The command mkconf generates the configuration file with the default values.

BootupProps maps property names (raw labels or their lowercase underscore
form) to the values applied at startup.  Strings select value-text choices of
enumerated properties ("INTERNAL"); numbers are written directly.  The file is
watched while the server runs and property changes are applied live.

Sim: true serves a synthetic camera instead of the vendor library, which is
useful on machines without the DCAM runtime.  The real library also requires
building with -tags dcam.`
	fmt.Println(str)
}

func mkconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	err = yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("hamamatsu-http version %v\n", Version)
}

// applyProps writes each named property; strings go through the
// value-text mapping, numbers directly.
func applyProps(dev *dcam.Device, props map[string]interface{}) {
	for name, raw := range props {
		cap, err := dev.CapByName(name)
		if err != nil {
			log.WithError(err).Warnf("bootup property %q", name)
			continue
		}
		switch v := raw.(type) {
		case string:
			_, err = cap.WriteText(v)
		case float64:
			_, err = cap.Write(v)
		case int:
			_, err = cap.Write(float64(v))
		default:
			log.Warnf("bootup property %q has unusable value %v", name, raw)
			continue
		}
		if err != nil {
			log.WithError(err).Warnf("could not apply property %q", name)
		}
	}
}

// watchConfig re-applies BootupProps whenever the config file changes,
// so exposure and trigger settings can be tuned without a restart.
func watchConfig(dev *dcam.Device) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Warn("config watcher unavailable")
		return
	}
	if err := w.Add(ConfigFileName); err != nil {
		log.WithError(err).Warnf("not watching %s", ConfigFileName)
		w.Close()
		return
	}
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
					log.WithError(err).Warn("could not reload config")
					continue
				}
				c := config{}
				if err := k.Unmarshal("", &c); err != nil {
					log.WithError(err).Warn("could not parse config")
					continue
				}
				log.Infof("config changed, reapplying %d properties", len(c.BootupProps))
				applyProps(dev, c.BootupProps)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("config watcher")
			}
		}
	}()
}

func run() {
	cfg := config{}
	k.Unmarshal("", &cfg)
	log.Debug(spew.Sdump(cfg))

	var api dcam.API
	if cfg.Sim {
		api = dcam.NewSim(1)
		cfg.CameraIndex = 0
	} else {
		var err error
		api, err = dcam.Native()
		if err != nil {
			log.Fatal(err)
		}
	}
	reg := dcam.NewRegistry(api)
	if err := reg.Open(); err != nil {
		log.Fatal(err)
	}
	defer reg.Close()
	log.Infof("DCAM initialized, %d device(s)", reg.NumDevices())

	dev, err := acquire.OpenDevice(reg, cfg.CameraIndex)
	if err != nil {
		log.Fatal(err)
	}
	info, err := dev.Info()
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("connected to %s %s (%s)",
		info[dcam.IDStrVendor], info[dcam.IDStrModel], info[dcam.IDStrCameraID])

	applyProps(dev, cfg.BootupProps)
	watchConfig(dev)

	w := httpd.New(dev)
	rootRouter := chi.NewRouter()
	mount := fmt.Sprintf("/camera/%d", cfg.CameraIndex)
	rootRouter.Mount(mount, http.StripPrefix(mount, w.Handler()))
	rootRouter.Handle("/metrics", promhttp.Handler())

	log.Infof("now listening for requests at %s%s", cfg.Addr, mount)
	log.Fatal(http.ListenAndServe(cfg.Addr, rootRouter))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
