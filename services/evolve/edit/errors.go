// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package edit

import "errors"

// Sentinel errors for the edit pipeline. Callers branch with errors.Is.
var (
	// ErrValidation reports a malformed package or edit shape. Raised
	// before any file is touched.
	ErrValidation = errors.New("validation error")

	// ErrDecode reports malformed JSON input.
	ErrDecode = errors.New("decode error")

	// ErrMatchNotFound reports that an edit's matcher text or pattern did
	// not occur in the target content.
	ErrMatchNotFound = errors.New("match not found")

	// ErrPattern reports a regex pattern that failed to compile.
	ErrPattern = errors.New("pattern error")
)
