package signature

import "time"

// The ping endpoint validates a device/app fingerprint before issuing a
// signature. The values below mirror a real Android client install; the
// backend rejects pings whose fingerprint it does not recognize, so these
// fields are fixed and only ipLocation varies per call.
const (
	pingToken      = "tosFwQCJMS8qrW_AjLoHPQ41646J5dRNha6ZWHnijoYQQQoADQoXYSo7ki7O5-CsgN4CH0uRk6EEoJ0728ar9scCRQW3ZkbfrPfeCXW2VgopSW2FWDqPOoVYIuVPAOnXCZ5g"
	appPackage     = "tv.vavoo.app"
	appVersion     = "3.1.21"
	appBuildID     = "289515000"
	appEngine      = "hbc85"
	appSignature   = "6e8a975e3cbf07d5de823a760d4c2547f86c1403105020adee5de67ac510999e"
	appInstaller   = "app.revanced.manager.flutter"
	deviceBrand    = "google"
	deviceModel    = "Pixel"
	deviceName     = "sdk_gphone64_arm64"
	deviceUniqueID = "d10e5d99ab665233"
)

type deviceInfo struct {
	Type     string `json:"type"`
	Brand    string `json:"brand"`
	Model    string `json:"model"`
	Name     string `json:"name"`
	UniqueID string `json:"uniqueId"`
}

type osInfo struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	ABIs    []string `json:"abis"`
	Host    string   `json:"host"`
}

type appInfo struct {
	Platform   string   `json:"platform"`
	Version    string   `json:"version"`
	BuildID    string   `json:"buildId"`
	Engine     string   `json:"engine"`
	Signatures []string `json:"signatures"`
	Installer  string   `json:"installer"`
}

type versionInfo struct {
	Package string `json:"package"`
	Binary  string `json:"binary"`
	JS      string `json:"js"`
}

type fingerprintMetadata struct {
	Device  deviceInfo  `json:"device"`
	OS      osInfo      `json:"os"`
	App     appInfo     `json:"app"`
	Version versionInfo `json:"version"`
}

type proxyInfo struct {
	Supported  []string `json:"supported"`
	Engine     string   `json:"engine"`
	SSVersion  int      `json:"ssVersion"`
	Enabled    bool     `json:"enabled"`
	AutoServer bool     `json:"autoServer"`
	ID         string   `json:"id"`
}

type iapInfo struct {
	Supported bool `json:"supported"`
}

// pingPayload is the full fingerprint body sent to the ping endpoint.
type pingPayload struct {
	Token          string              `json:"token"`
	Reason         string              `json:"reason"`
	Locale         string              `json:"locale"`
	Theme          string              `json:"theme"`
	Metadata       fingerprintMetadata `json:"metadata"`
	AppFocusTime   int                 `json:"appFocusTime"`
	PlayerActive   bool                `json:"playerActive"`
	PlayDuration   int                 `json:"playDuration"`
	DevMode        bool                `json:"devMode"`
	HasAddon       bool                `json:"hasAddon"`
	CastConnected  bool                `json:"castConnected"`
	Package        string              `json:"package"`
	Version        string              `json:"version"`
	Process        string              `json:"process"`
	FirstAppStart  int64               `json:"firstAppStart"`
	LastAppStart   int64               `json:"lastAppStart"`
	IPLocation     string              `json:"ipLocation"`
	AdblockEnabled bool                `json:"adblockEnabled"`
	Proxy          proxyInfo           `json:"proxy"`
	IAP            iapInfo             `json:"iap"`
}

// fingerprint builds the ping payload with the given ipLocation ("" when no
// specific viewer IP should be asserted).
func (s *Service) fingerprint(ipLocation string) pingPayload {
	now := time.Now().UnixMilli()
	return pingPayload{
		Token:  pingToken,
		Reason: "app-blur",
		Locale: s.Config.Language,
		Theme:  "dark",
		Metadata: fingerprintMetadata{
			Device: deviceInfo{
				Type:     "Handset",
				Brand:    deviceBrand,
				Model:    deviceModel,
				Name:     deviceName,
				UniqueID: deviceUniqueID,
			},
			OS: osInfo{
				Name:    "android",
				Version: "13",
				ABIs:    []string{"arm64-v8a", "armeabi-v7a", "armeabi"},
				Host:    "android",
			},
			App: appInfo{
				Platform:   "android",
				Version:    appVersion,
				BuildID:    appBuildID,
				Engine:     appEngine,
				Signatures: []string{appSignature},
				Installer:  appInstaller,
			},
			Version: versionInfo{
				Package: appPackage,
				Binary:  appVersion,
				JS:      appVersion,
			},
		},
		HasAddon:       true,
		Package:        appPackage,
		Version:        appVersion,
		Process:        "app",
		FirstAppStart:  now,
		LastAppStart:   now,
		IPLocation:     ipLocation,
		AdblockEnabled: true,
		Proxy: proxyInfo{
			Supported:  []string{"ss", "openvpn"},
			Engine:     "ss",
			SSVersion:  1,
			Enabled:    true,
			AutoServer: true,
			ID:         "de-fra",
		},
		IAP: iapInfo{Supported: false},
	}
}
