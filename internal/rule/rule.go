// Package rule turns a recording rule into candidate reservations.
package rule

import (
	"recsched/internal/reservation"
)

// Rule is a stored search definition. Nil pointer fields are unset.
//
// Week is a weekday bitmask with Sunday as bit 0 (0x01) through Saturday
// as bit 6 (0x40). StartTime is an hour of day and TimeRange a length in
// hours. DurationMin/DurationMax are in seconds.
type Rule struct {
	ID     int64 `json:"id"`
	Enable bool  `json:"enable"`

	Keyword       *string `json:"keyword,omitempty"`
	IgnoreKeyword *string `json:"ignoreKeyword,omitempty"`
	KeyCS         *bool   `json:"keyCS,omitempty"`
	KeyRegExp     *bool   `json:"keyRegExp,omitempty"`
	Title         *bool   `json:"title,omitempty"`
	Description   *bool   `json:"description,omitempty"`
	Extended      *bool   `json:"extended,omitempty"`

	GR  *bool `json:"GR,omitempty"`
	BS  *bool `json:"BS,omitempty"`
	CS  *bool `json:"CS,omitempty"`
	SKY *bool `json:"SKY,omitempty"`

	Station     *int64 `json:"station,omitempty"`
	Genrelv1    *int   `json:"genrelv1,omitempty"`
	Genrelv2    *int   `json:"genrelv2,omitempty"`
	StartTime   *int   `json:"startTime,omitempty"`
	TimeRange   *int   `json:"timeRange,omitempty"`
	Week        int    `json:"week"`
	IsFree      *bool  `json:"isFree,omitempty"`
	DurationMin *int   `json:"durationMin,omitempty"`
	DurationMax *int   `json:"durationMax,omitempty"`

	Directory      *string `json:"directory,omitempty"`
	RecordedFormat *string `json:"recordedFormat,omitempty"`

	DelTs      *bool   `json:"delTs,omitempty"`
	Mode1      *int    `json:"mode1,omitempty"`
	Directory1 *string `json:"directory1,omitempty"`
	Mode2      *int    `json:"mode2,omitempty"`
	Directory2 *string `json:"directory2,omitempty"`
	Mode3      *int    `json:"mode3,omitempty"`
	Directory3 *string `json:"directory3,omitempty"`
}

// Search builds the catalog query for r.
func (r *Rule) Search() SearchCriteria {
	return SearchCriteria{
		Keyword:       r.Keyword,
		IgnoreKeyword: r.IgnoreKeyword,
		KeyCS:         r.KeyCS,
		KeyRegExp:     r.KeyRegExp,
		Title:         r.Title,
		Description:   r.Description,
		Extended:      r.Extended,
		GR:            r.GR,
		BS:            r.BS,
		CS:            r.CS,
		SKY:           r.SKY,
		Station:       r.Station,
		Genrelv1:      r.Genrelv1,
		Genrelv2:      r.Genrelv2,
		StartTime:     r.StartTime,
		TimeRange:     r.TimeRange,
		Week:          r.Week,
		IsFree:        r.IsFree,
		DurationMin:   r.DurationMin,
		DurationMax:   r.DurationMax,
	}
}

// Option returns the output override, or nil when the rule sets none.
func (r *Rule) Option() *reservation.Option {
	if r.Directory == nil && r.RecordedFormat == nil {
		return nil
	}
	o := &reservation.Option{}
	if r.Directory != nil {
		o.Directory = *r.Directory
	}
	if r.RecordedFormat != nil {
		o.RecordedFormat = *r.RecordedFormat
	}
	return o
}

// Encode returns the encode override, or nil when delTs is unset.
func (r *Rule) Encode() *reservation.EncodeOption {
	if r.DelTs == nil {
		return nil
	}
	return &reservation.EncodeOption{
		DelTs:      *r.DelTs,
		Mode1:      r.Mode1,
		Directory1: r.Directory1,
		Mode2:      r.Mode2,
		Directory2: r.Directory2,
		Mode3:      r.Mode3,
		Directory3: r.Directory3,
	}
}
