package models

// Country is one entry of the country reference list
type Country struct {
	CommonName   string `json:"commonName"`
	OfficialName string `json:"officialName"`
	Alpha2Code   string `json:"alpha2Code"`
	Alpha3Code   string `json:"alpha3Code"`
}
