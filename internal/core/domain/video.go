package domain

import (
	"strconv"
	"strings"
	"time"
)

const (
	videoFilePrefix = "video_"
	videoFileSuffix = ".mp4"
)

// VideoDescriptor identifies one captured clip.
//
// Filename is derived from CaptureTimestamp. LivenessEpoch stays zero
// until the clip is enqueued, at which point it is set once from the
// motion channel's current epoch.
type VideoDescriptor struct {
	CaptureTimestamp uint64 `cbor:"ts" json:"capture_timestamp"`
	Filename         string `cbor:"file" json:"filename"`
	LivenessEpoch    uint64 `cbor:"epoch" json:"liveness_epoch"`
}

// NewVideoDescriptor builds a descriptor for a clip captured at ts
// (seconds since the Unix epoch).
func NewVideoDescriptor(ts uint64) VideoDescriptor {
	return VideoDescriptor{
		CaptureTimestamp: ts,
		Filename:         FilenameForTimestamp(ts),
	}
}

// NowVideoDescriptor builds a descriptor stamped with now.
func NowVideoDescriptor(now time.Time) VideoDescriptor {
	return NewVideoDescriptor(uint64(now.Unix()))
}

// WithEpoch returns a copy of d with its liveness epoch set.
func (d VideoDescriptor) WithEpoch(epoch uint64) VideoDescriptor {
	d.LivenessEpoch = epoch
	return d
}

// Validate checks that Filename matches CaptureTimestamp.
func (d VideoDescriptor) Validate() error {
	if d.Filename != FilenameForTimestamp(d.CaptureTimestamp) {
		return ErrVideoInvalid.WithDetails("filename " + d.Filename + " does not match capture timestamp")
	}
	return nil
}

// BlobName is the on-disk name of the clip once encrypted.
func (d VideoDescriptor) BlobName() string {
	return EncryptedBlobName(d.LivenessEpoch)
}

// FilenameForTimestamp returns "video_<ts>.mp4".
func FilenameForTimestamp(ts uint64) string {
	return videoFilePrefix + strconv.FormatUint(ts, 10) + videoFileSuffix
}

// ParseVideoFilename extracts the capture timestamp from a plaintext
// clip name. It only accepts names FilenameForTimestamp could produce.
func ParseVideoFilename(name string) (uint64, bool) {
	if !strings.HasPrefix(name, videoFilePrefix) || !strings.HasSuffix(name, videoFileSuffix) {
		return 0, false
	}
	digits := name[len(videoFilePrefix) : len(name)-len(videoFileSuffix)]
	if digits == "" || (len(digits) > 1 && digits[0] == '0') {
		return 0, false
	}
	ts, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// EncryptedBlobName returns the decimal epoch used to name encrypted clips.
func EncryptedBlobName(epoch uint64) string {
	return strconv.FormatUint(epoch, 10)
}
