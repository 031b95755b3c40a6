// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cards

import "github.com/stationwise/stationwise/services/gateway/datatypes"

// RuleCards builds the rule-branch payload: a "local guide" primary card
// plus one reminder card per trap warning, in warning order.
func RuleCards(warnings []string) datatypes.FallbackPayload {
	secondary := make([]datatypes.Card, 0, len(warnings))
	for _, w := range warnings {
		secondary = append(secondary, datatypes.Card{Title: "提醒", Desc: w})
	}
	return datatypes.FallbackPayload{
		Primary: datatypes.Card{
			Title: "在地嚮導",
			Desc:  "我整理了這個地點現在需要注意的事項。",
		},
		Secondary: secondary,
	}
}
