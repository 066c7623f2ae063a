package molding

// Spider is a carrier fixture that provides mold attachment sites on an arm.
type Spider struct {
	SpiderType         string  `json:"spider_type"` // e.g. "2-way", "4-way"
	AttachmentSites    int     `json:"attachment_sites"`
	Volume             float64 `json:"volume"`
	Weight             float64 `json:"weight"`
	AttachmentDistance float64 `json:"attachment_distance"`
}

func (s Spider) Capacity() int {
	return s.AttachmentSites
}

// CheckSpatialFit reports whether the spider alone fits in the arm's volume.
func (s Spider) CheckSpatialFit(armVolume float64) bool {
	return s.Volume <= armVolume
}

// CheckVolumetricFit reports whether the spider fits in what is left of the arm's
// volume after the molds already loaded.
func (s Spider) CheckVolumetricFit(remainingVolume float64) bool {
	return s.Volume <= remainingVolume
}

// AvailableAttachmentVolume returns the number of attachment sites left once usedSites
// are taken. It never goes below zero.
func (s Spider) AvailableAttachmentVolume(usedSites int) int {
	return max(0, s.AttachmentSites-usedSites)
}
