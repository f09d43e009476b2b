package atapi

import "strings"

// Quirks describes the ways a particular drive deviates from the command set.
type Quirks struct {
	// NoMediaCodes drives never classify the medium in MODE SENSE.
	NoMediaCodes bool `toml:"no_media_codes" json:"noMediaCodes"`
	// StickyBusy drives keep BSY asserted while raising DRQ.
	StickyBusy bool `toml:"sticky_busy" json:"stickyBusy"`
	// MustUseSoftScan drives lack a usable SCAN command.
	MustUseSoftScan bool `toml:"must_use_softscan" json:"mustUseSoftScan"`
	// UnstableTOC drives occasionally return garbage on the first TOC read.
	UnstableTOC bool `toml:"unstable_toc" json:"unstableToc"`
	// NoDRQInTOC drives don't signal DRQ before returning TOC data.
	NoDRQInTOC bool `toml:"no_drq_in_toc" json:"noDrqInToc"`
	// AlternateMaxSpeed, when non-zero, is the read speed in kB/s to set
	// after reset.
	AlternateMaxSpeed int `toml:"alternate_max_speed" json:"alternateMaxSpeed"`
	// ChangerEjectHack drives need LOAD/UNLOAD plus a PLAY to open the tray.
	ChangerEjectHack bool `toml:"changer_eject_hack" json:"changerEjectHack"`
}

// Names lists the quirks that are set, for display.
func (q Quirks) Names() []string {
	var names []string
	if q.NoMediaCodes {
		names = append(names, "Bad Media Codes")
	}
	if q.StickyBusy {
		names = append(names, "Sticky BSY bit")
	}
	if q.MustUseSoftScan {
		names = append(names, "Simulated SCAN")
	}
	if q.UnstableTOC {
		names = append(names, "Unstable TOC")
	}
	if q.NoDRQInTOC {
		names = append(names, "Unstable DRQ")
	}
	if q.AlternateMaxSpeed > 0 {
		names = append(names, "Speed Limit")
	}
	if q.ChangerEjectHack {
		names = append(names, "Changer Eject")
	}
	return names
}

// Merge returns q with every quirk set in o also set.
func (q Quirks) Merge(o Quirks) Quirks {
	q.NoMediaCodes = q.NoMediaCodes || o.NoMediaCodes
	q.StickyBusy = q.StickyBusy || o.StickyBusy
	q.MustUseSoftScan = q.MustUseSoftScan || o.MustUseSoftScan
	q.UnstableTOC = q.UnstableTOC || o.UnstableTOC
	q.NoDRQInTOC = q.NoDRQInTOC || o.NoDRQInTOC
	q.ChangerEjectHack = q.ChangerEjectHack || o.ChangerEjectHack
	if o.AlternateMaxSpeed > 0 {
		q.AlternateMaxSpeed = o.AlternateMaxSpeed
	}
	return q
}

var knownQuirks = []struct {
	prefix string
	quirks Quirks
}{
	// Doesn't move the carousel on LOAD/UNLOAD alone.
	{"TEAC CD-C68E", Quirks{ChangerEjectHack: true}},
}

// LookupQuirks returns the built-in quirks for a drive model as reported by
// IDENTIFY PACKET DEVICE. Anything else has to come from configuration.
func LookupQuirks(model string) Quirks {
	for _, k := range knownQuirks {
		if strings.HasPrefix(model, k.prefix) {
			return k.quirks
		}
	}
	return Quirks{}
}
