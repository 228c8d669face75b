package accounts

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/goliatone/go-errors"
)

// UnknownDevice is the placeholder recorded when device info is absent.
const UnknownDevice = "Unknown"

// deviceSeparator joins the fields of the compact string form. It is
// reserved: field values must not contain it.
const deviceSeparator = "|"

// DeviceInfo describes the client device recorded in login history.
type DeviceInfo struct {
	IPAddress string `json:"ip_address"`
	OS        string `json:"os"`
	Browser   string `json:"browser"`
}

// Normalize returns a copy with empty fields replaced by UnknownDevice.
func (d DeviceInfo) Normalize() DeviceInfo {
	if strings.TrimSpace(d.IPAddress) == "" {
		d.IPAddress = UnknownDevice
	}
	if strings.TrimSpace(d.OS) == "" {
		d.OS = UnknownDevice
	}
	if strings.TrimSpace(d.Browser) == "" {
		d.Browser = UnknownDevice
	}
	return d
}

// String renders the compact "ip|os|browser" form.
func (d DeviceInfo) String() string {
	d = d.Normalize()
	return strings.Join([]string{d.IPAddress, d.OS, d.Browser}, deviceSeparator)
}

// ParseDeviceInfo parses the compact "ip|os|browser" form. Missing fields
// default to UnknownDevice; extra separators are an error.
func ParseDeviceInfo(s string) (DeviceInfo, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DeviceInfo{}.Normalize(), nil
	}

	parts := strings.Split(s, deviceSeparator)
	if len(parts) > 3 {
		return DeviceInfo{}, ErrInvalidArgument.Clone().
			WithMetadata(map[string]any{"device": s, "reason": "too many fields"})
	}

	info := DeviceInfo{}
	if len(parts) > 0 {
		info.IPAddress = parts[0]
	}
	if len(parts) > 1 {
		info.OS = parts[1]
	}
	if len(parts) > 2 {
		info.Browser = parts[2]
	}

	return info.Normalize(), nil
}

// EncodeDeviceInfo renders the base64 JSON form used by clients that cannot
// guarantee separator-free fields.
func EncodeDeviceInfo(d DeviceInfo) string {
	payload, _ := json.Marshal(d.Normalize())
	return base64.StdEncoding.EncodeToString(payload)
}

// DecodeDeviceInfo parses the base64 JSON form.
func DecodeDeviceInfo(s string) (DeviceInfo, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return DeviceInfo{}, errors.Wrap(err, errors.CategoryBadInput, "unable to decode device info").
			WithTextCode(TextCodeInvalidArgument).
			WithCode(errors.CodeBadRequest)
	}

	info := DeviceInfo{}
	if err := json.Unmarshal(raw, &info); err != nil {
		return DeviceInfo{}, errors.Wrap(err, errors.CategoryBadInput, "unable to parse device info").
			WithTextCode(TextCodeInvalidArgument).
			WithCode(errors.CodeBadRequest)
	}

	return info.Normalize(), nil
}
