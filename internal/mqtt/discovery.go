package mqtt

import "github.com/cupcaker/airctrlmqtt/internal/buildinfo"

// Fixed identity of the announced device and of this bridge.
const (
	Manufacturer = "TFA Dostmann"
	Model        = "AIRCO2NTROL"
	DeviceName   = "TFA AIRCO2NTROL"
	OriginName   = "AirCtrlMqtt"
	SupportURL   = "https://github.com/cupcaker/AirCtrlMqtt"
)

// Component keys in the discovery document, one per measured facet.
const (
	FacetCO2         = "co2"
	FacetTemperature = "temperature"
	FacetHumidity    = "humidity"
)

// DeviceInfo holds the Home Assistant device registry fields. All
// components of the discovery document share it, so HA groups them
// under a single device page.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	Name         string   `json:"name"`
	SWVersion    string   `json:"sw_version"`
}

// Origin describes the software publishing the discovery document.
type Origin struct {
	Name       string `json:"name"`
	SWVersion  string `json:"sw_version"`
	SupportURL string `json:"support_url"`
}

// Component is one entity of an HA device discovery document.
type Component struct {
	Platform          string `json:"platform"`
	DeviceClass       string `json:"device_class,omitempty"`
	Name              string `json:"name"`
	StateTopic        string `json:"state_topic"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
	ValueTemplate     string `json:"value_template"`
	UniqueID          string `json:"unique_id"`
	Icon              string `json:"icon,omitempty"`
}

// Discovery is the JSON payload published (retained) to the device
// discovery topic.
type Discovery struct {
	Device     DeviceInfo           `json:"device"`
	Components map[string]Component `json:"components"`
	Origin     Origin               `json:"origin"`
}

// BuildDescriptor assembles the discovery document for the sensor
// identified by objectID. All three components read from stateTopic,
// which must be the topic readings are published to; each value
// template selects its own field of the combined reading payload.
//
// BuildDescriptor is pure: equal arguments give equal documents.
func BuildDescriptor(objectID, stateTopic string) Discovery {
	sensor := func(facet, class, name, unit, icon string) Component {
		return Component{
			Platform:          "sensor",
			DeviceClass:       class,
			Name:              name,
			StateTopic:        stateTopic,
			UnitOfMeasurement: unit,
			ValueTemplate:     "{{ value_json." + facet + " }}",
			UniqueID:          objectID + "_" + facet,
			Icon:              icon,
		}
	}

	return Discovery{
		Device: DeviceInfo{
			Identifiers:  []string{objectID},
			Manufacturer: Manufacturer,
			Model:        Model,
			Name:         DeviceName,
			// The bridge version, not the device firmware: HA has no
			// way to read the latter.
			SWVersion: OriginName + " " + buildinfo.Version,
		},
		Components: map[string]Component{
			FacetCO2:         sensor(FacetCO2, "carbon_dioxide", "CO2", "ppm", "mdi:molecule-co2"),
			FacetTemperature: sensor(FacetTemperature, "temperature", "Temperature", "°C", "mdi:thermometer"),
			FacetHumidity:    sensor(FacetHumidity, "humidity", "Humidity", "%", "mdi:water-percent"),
		},
		Origin: Origin{
			Name:       OriginName,
			SWVersion:  buildinfo.Version,
			SupportURL: SupportURL,
		},
	}
}

// DiscoveryTopic returns the device discovery topic
// "{prefix}/device/{objectID}/config".
func DiscoveryTopic(prefix, objectID string) string {
	return prefix + "/device/" + objectID + "/config"
}
