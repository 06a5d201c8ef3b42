// Package cloudinit generates the cloud-init documents an instance is
// created with.
//
// The LXD backend does not build a NoCloud seed locally: the rendered
// documents are embedded in the instance's create request as the
// user.meta-data, user.vendor-data and user.user-data config keys, and
// the daemon materializes them through its cloud-init:config disk
// device. Empty documents are omitted from the request.
//
// See https://cloudinit.readthedocs.io/en/latest/explanation/format.html
package cloudinit

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/rokaw/multipass/internal/vm"
)

// UserData is the cloud-config user-data structure. Marshaled to YAML
// and prefixed with the "#cloud-config" header.
type UserData struct {
	SSHAuthorizedKeys []string `yaml:"ssh_authorized_keys,omitempty"`
	SSHPasswordAuth   bool     `yaml:"ssh_pwauth"`
}

// MetaData is the cloud-init meta-data structure.
type MetaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

// VendorData is the cloud-config vendor-data structure carrying the
// backend's own provisioning defaults.
type VendorData struct {
	Growpart *Growpart `yaml:"growpart,omitempty"`
	Timezone string    `yaml:"timezone,omitempty"`
}

// Growpart configures automatic root filesystem growth.
type Growpart struct {
	Mode    string   `yaml:"mode"`
	Devices []string `yaml:"devices"`
}

// Documents renders the cloud-init documents for a launch spec. A
// document the spec contributes nothing to comes back empty and is
// left out of the create request.
func Documents(spec *vm.LaunchSpec) (vm.CloudInit, error) {
	userData, err := GenerateUserData(spec)
	if err != nil {
		return vm.CloudInit{}, err
	}

	metaData, err := GenerateMetaData(spec.Name)
	if err != nil {
		return vm.CloudInit{}, err
	}

	vendorData, err := GenerateVendorData(spec)
	if err != nil {
		return vm.CloudInit{}, err
	}

	return vm.CloudInit{
		MetaData:   metaData,
		VendorData: vendorData,
		UserData:   userData,
	}, nil
}

// GenerateUserData renders the user-data document, or "" when the spec
// carries nothing for it.
func GenerateUserData(spec *vm.LaunchSpec) (string, error) {
	if len(spec.SSHAuthorizedKeys) == 0 {
		return "", nil
	}

	userData := UserData{
		SSHAuthorizedKeys: spec.SSHAuthorizedKeys,
		SSHPasswordAuth:   false,
	}

	yamlBytes, err := yaml.Marshal(&userData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user-data: %w", err)
	}

	// The #cloud-config header is required by the cloud-init spec.
	return "#cloud-config\n" + string(yamlBytes), nil
}

// GenerateMetaData renders the meta-data document.
//
// The instance-id is the instance name: cloud-init uses it for
// first-boot detection, so recreating an instance under the same name
// re-runs provisioning.
func GenerateMetaData(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("instance name is required")
	}

	metaData := MetaData{
		InstanceID:    name,
		LocalHostname: name,
	}

	yamlBytes, err := yaml.Marshal(&metaData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta-data: %w", err)
	}

	return string(yamlBytes), nil
}

// GenerateVendorData renders the vendor-data document with the
// backend's provisioning defaults.
func GenerateVendorData(spec *vm.LaunchSpec) (string, error) {
	vendorData := VendorData{
		Growpart: &Growpart{
			Mode:    "auto",
			Devices: []string{"/"},
		},
		Timezone: spec.Timezone,
	}

	yamlBytes, err := yaml.Marshal(&vendorData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal vendor-data: %w", err)
	}

	return "#cloud-config\n" + string(yamlBytes), nil
}
