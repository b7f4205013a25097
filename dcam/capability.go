package dcam

import (
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Capability describes one named, typed camera property.  The table is
// built once per device open by walking the property id chain and is
// immutable for the life of the open session.
type Capability struct {
	ID EProp

	// Name is the label the camera reports, e.g. "EXPOSURE TIME";
	// UName is the normalized lookup form, "exposure_time".
	Name  string
	UName string

	Attribute EPropAttr
	Unit      EUnit
	Min       float64
	Max       float64
	Step      float64
	Default   float64

	// Enum maps value-text labels to raw values for properties that
	// carry them; nil otherwise.  EnumValues is the inverse.
	Enum       map[string]float64
	EnumValues map[float64]string

	dev *Device
}

// DType returns the value type bits of the attribute field.
func (c *Capability) DType() EPropAttr { return c.Attribute & PropTypeMask }

// DTypeName returns the value type as a short lowercase word.
func (c *Capability) DTypeName() string {
	switch c.DType() {
	case PropTypeMode:
		return "mode"
	case PropTypeLong:
		return "long"
	case PropTypeReal:
		return "real"
	}
	return "none"
}

// Readable reports whether the property may be read.
func (c *Capability) Readable() bool { return c.Attribute&PropAttrReadable != 0 }

// Writable reports whether the property may be written.
func (c *Capability) Writable() bool { return c.Attribute&PropAttrWritable != 0 }

// Read returns the current raw value.
func (c *Capability) Read() (float64, error) {
	h, err := c.dev.h()
	if err != nil {
		return 0, err
	}
	return c.dev.api.PropGetValue(h, c.ID)
}

// Write sets the value and returns it as the camera rounded it.
func (c *Capability) Write(value float64) (float64, error) {
	h, err := c.dev.h()
	if err != nil {
		return 0, err
	}
	return c.dev.api.PropSetGetValue(h, c.ID, value)
}

// WriteText sets an enumerated property by its value-text label.
func (c *Capability) WriteText(label string) (float64, error) {
	v, ok := c.Enum[label]
	if !ok {
		return 0, fmt.Errorf("property %s has no value %q", c.Name, label)
	}
	return c.Write(v)
}

// Format renders a raw value for humans: the enum label when one
// exists, the integer form for mode/long types, %g otherwise.
func (c *Capability) Format(v float64) string {
	if s, ok := c.EnumValues[v]; ok {
		return s
	}
	switch c.DType() {
	case PropTypeMode, PropTypeLong:
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

// normalizeName lowercases a property label and joins words with
// underscores, the form used for name lookup.
func normalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

// buildCapabilities walks the property id chain and fills the lookup
// maps.  Called with d.mu held, during Open.
func (d *Device) buildCapabilities() {
	d.caps = map[EProp]*Capability{}
	d.capName = map[string]*Capability{}
	id := EProp(0)
	for {
		next, err := d.api.PropGetNextID(d.handle, id, PropOptionSupport)
		if err != nil || next == 0 {
			break
		}
		id = next
		cap, err := d.buildCapability(id)
		if err != nil {
			log.WithError(err).Warnf("could not build capability 0x%X", int32(id))
			continue
		}
		d.caps[cap.ID] = cap
		d.capName[cap.Name] = cap
		d.capName[cap.UName] = cap
	}
}

func (d *Device) buildCapability(id EProp) (*Capability, error) {
	name, err := d.api.PropGetName(d.handle, id)
	if err != nil {
		return nil, err
	}
	attr, err := d.api.PropGetAttr(d.handle, id)
	if err != nil {
		return nil, err
	}
	cap := &Capability{
		ID:        id,
		Name:      name,
		UName:     normalizeName(name),
		Attribute: attr.Attribute,
		Unit:      attr.Unit,
		Min:       attr.Min,
		Max:       attr.Max,
		Step:      attr.Step,
		Default:   attr.Default,
		dev:       d,
	}
	if attr.Attribute&PropAttrHasValueText != 0 {
		cap.Enum, err = d.valueTexts(id, attr.Min)
		if err != nil {
			return nil, err
		}
		cap.EnumValues = map[float64]string{}
		for label, v := range cap.Enum {
			cap.EnumValues[v] = label
		}
	}
	return cap, nil
}

// valueTexts walks the valid values of an enumerated property, starting
// at its minimum and stepping with PropQueryValue(NEXT) until the
// camera reports OUTOFRANGE.
func (d *Device) valueTexts(id EProp, start float64) (map[string]float64, error) {
	texts := map[string]float64{}
	v := start
	for {
		label, err := d.api.PropGetValueText(d.handle, id, v)
		if err != nil {
			return nil, err
		}
		texts[label] = v
		next, err := d.api.PropQueryValue(d.handle, id, v, PropOptionNext)
		if err != nil {
			if codeIs(err, ErrOutOfRange) {
				break
			}
			return nil, err
		}
		v = next
	}
	return texts, nil
}

// Capabilities returns all capabilities sorted by id.
func (d *Device) Capabilities() []*Capability {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Capability, 0, len(d.caps))
	for _, c := range d.caps {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CapByID looks a capability up by property id.
func (d *Device) CapByID(id EProp) (*Capability, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.caps[id]
	if !ok {
		return nil, fmt.Errorf("property 0x%X not supported by this camera", int32(id))
	}
	return c, nil
}

// CapByName looks a capability up by its reported label or normalized
// name.
func (d *Device) CapByName(name string) (*Capability, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.capName[name]
	if !ok {
		c, ok = d.capName[normalizeName(name)]
	}
	if !ok {
		return nil, fmt.Errorf("property %q not supported by this camera", name)
	}
	return c, nil
}

// Get reads a property value by id.
func (d *Device) Get(id EProp) (float64, error) {
	c, err := d.CapByID(id)
	if err != nil {
		return 0, err
	}
	return c.Read()
}

// Set writes a property value by id, returning the value as rounded by
// the camera.
func (d *Device) Set(id EProp, value float64) (float64, error) {
	c, err := d.CapByID(id)
	if err != nil {
		return 0, err
	}
	return c.Write(value)
}
