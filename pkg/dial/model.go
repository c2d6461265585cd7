package dial

import (
	"encoding/xml"
	"strings"
)

// Descriptor is a receiver's device description.
type Descriptor struct {
	// Location is the URL the descriptor was fetched from.
	Location string

	// ApplicationURL is the base URL of application resources.
	ApplicationURL string

	FriendlyName string
	Manufacturer string
	ModelName    string

	// UDN is the unique device name, usually "uuid:<id>".
	UDN string
}

type deviceXML struct {
	XMLName xml.Name `xml:"root"`
	Device  struct {
		DeviceType   string `xml:"deviceType"`
		FriendlyName string `xml:"friendlyName"`
		Manufacturer string `xml:"manufacturer"`
		ModelName    string `xml:"modelName"`
		UDN          string `xml:"UDN"`
	} `xml:"device"`
}

// AppState is the run state reported for an application.
type AppState string

const (
	AppRunning AppState = "running"
	AppStopped AppState = "stopped"
	AppHidden  AppState = "hidden"
)

// AppInfo describes one receiver application.
type AppInfo struct {
	Name      string
	State     AppState
	AllowStop bool

	// RunLink is the relative resource of the running instance, used by Stop.
	RunLink string

	// App2AppURL is the link endpoint exposed by the running application.
	App2AppURL string

	// Version is the protocol version the application speaks.
	Version string
}

// Running reports whether the application is in the running state.
func (a *AppInfo) Running() bool {
	return a != nil && a.State == AppRunning
}

type serviceXML struct {
	XMLName xml.Name `xml:"service"`
	Name    string   `xml:"name"`
	Options struct {
		AllowStop string `xml:"allowStop,attr"`
	} `xml:"options"`
	State string `xml:"state"`
	Links []struct {
		Rel  string `xml:"rel,attr"`
		Href string `xml:"href,attr"`
	} `xml:"link"`
	AdditionalData struct {
		App2AppURL string `xml:"X_OCAST_App2AppURL"`
		Version    string `xml:"X_OCAST_Version"`
	} `xml:"additionalData"`
}

func parseDescriptor(data []byte) (*Descriptor, error) {
	var doc deviceXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &Descriptor{
		FriendlyName: strings.TrimSpace(doc.Device.FriendlyName),
		Manufacturer: strings.TrimSpace(doc.Device.Manufacturer),
		ModelName:    strings.TrimSpace(doc.Device.ModelName),
		UDN:          strings.TrimSpace(doc.Device.UDN),
	}, nil
}

func parseAppInfo(data []byte) (*AppInfo, error) {
	var doc serviceXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	info := &AppInfo{
		Name:       strings.TrimSpace(doc.Name),
		State:      AppState(strings.TrimSpace(doc.State)),
		AllowStop:  strings.EqualFold(doc.Options.AllowStop, "true"),
		App2AppURL: strings.TrimSpace(doc.AdditionalData.App2AppURL),
		Version:    strings.TrimSpace(doc.AdditionalData.Version),
	}
	for _, l := range doc.Links {
		if l.Rel == "run" {
			info.RunLink = l.Href
		}
	}
	return info, nil
}
