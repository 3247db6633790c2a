// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

package memident

import (
	"fmt"
	"log"
	"math/rand"
	"strings"

	"github.com/forensicanalysis/casepipe/imageident"
)

// promptState is a state of the custom profile selection machine.
type promptState int

const (
	awaitingReadiness promptState = iota
	reEntering
	skipped
	selected
)

// maxPromptAttempts caps the re-prompt loop so a scripted or misbehaving
// input source cannot spin forever. Running out of attempts behaves like an
// explicit skip.
const maxPromptAttempts = 10

// waitMessages are shown when the operator is not ready yet. The choice is
// randomized for human pacing only.
var waitMessages = []string{
	"No problem, take your time.",
	"Alright, asking again in a moment.",
	"Standing by until the symbol table is in place.",
}

// chooseCustomProfile walks the interactive fallback state machine and
// returns the selected profile name and its OS family. A skip returns an
// empty profile and the unknown platform.
func (id *Identifier) chooseCustomProfile(imageName string) (string, imageident.Platform) {
	state := awaitingReadiness
	profile := ""

	for attempt := 0; attempt < maxPromptAttempts; attempt++ {
		switch state {
		case awaitingReadiness:
			answer, err := id.ask(fmt.Sprintf(
				"No profile matched %s. Have you prepared a custom symbol table? [yes/no/skip] ", imageName))
			if err != nil {
				state = skipped
				break
			}
			switch strings.ToLower(strings.TrimSpace(answer)) {
			case "yes", "y":
				state = reEntering
			case "skip", "s":
				state = skipped
			default:
				log.Print(waitMessages[rand.Intn(len(waitMessages))])
			}

		case reEntering:
			known := id.listProfiles()
			answer, err := id.ask("Enter the profile name: ")
			if err != nil {
				state = skipped
				break
			}
			answer = strings.TrimSpace(answer)
			if contains(known, answer) {
				profile = answer
				state = selected
			} else {
				log.Printf("unknown profile %q, choose one of: %s", answer, strings.Join(known, ", "))
			}

		case skipped:
			return "", imageident.Unknown

		case selected:
			return profile, profileFamily(profile)
		}
	}

	if state == selected {
		return profile, profileFamily(profile)
	}
	log.Printf("giving up on custom profile selection for %s", imageName)
	return "", imageident.Unknown
}

func (id *Identifier) ask(prompt string) (string, error) {
	return id.config.Input(prompt)
}

// profileFamily derives the OS family from the profile name. Anything that
// is neither Windows nor macOS is treated as Linux.
func profileFamily(profile string) imageident.Platform {
	lowered := strings.ToLower(profile)
	switch {
	case strings.Contains(lowered, "windows"):
		return imageident.Windows
	case strings.Contains(lowered, "mac"):
		return imageident.MacOS
	default:
		return imageident.Linux
	}
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
