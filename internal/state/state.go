// Package state holds the document persisted between sessions: known
// accounts, button templates for each family and local path bookmarks.
package state

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// MaxLocalPaths is the number of local path bookmarks kept
const MaxLocalPaths = 10

// Account is a connection profile
type Account struct {
	Host          string `json:"host"`
	Login         string `json:"login"`
	Port          int    `json:"port"`
	Password      string `json:"password"`
	JobManagerDir string `json:"jobManagerDir"`
}

// Addr returns host:port, defaulting the port to 22
func (a Account) Addr() string {
	port := a.Port
	if port <= 0 {
		port = 22
	}
	return fmt.Sprintf("%s:%d", a.Host, port)
}

// String returns login@host:port
func (a Account) String() string {
	return a.Login + "@" + a.Addr()
}

// Accounts is the ordered list of known connection profiles
type Accounts []Account

// Contains reports whether an identical account tuple is present
func (as Accounts) Contains(a Account) bool {
	for _, existing := range as {
		if existing == a {
			return true
		}
	}
	return false
}

// Add appends a unless an identical tuple is already present.
// Returns the (possibly unchanged) list and whether it was appended.
func (as Accounts) Add(a Account) (Accounts, bool) {
	if as.Contains(a) {
		return as, false
	}
	return append(as, a), true
}

// Find selects an account by index ("0"), login@host, login@host:port or host.
// The first match in list order wins.
func (as Accounts) Find(selector string) (Account, bool) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return Account{}, false
	}
	if idx, err := strconv.Atoi(selector); err == nil {
		if idx >= 0 && idx < len(as) {
			return as[idx], true
		}
		return Account{}, false
	}
	for _, a := range as {
		switch selector {
		case a.String(), a.Login + "@" + a.Host, a.Host:
			return a, true
		}
	}
	return Account{}, false
}

// ParseAccount parses login@host or login@host:port. The port defaults to 22.
func ParseAccount(addr string) (Account, error) {
	login, hostPort, ok := strings.Cut(strings.TrimSpace(addr), "@")
	if !ok || login == "" || hostPort == "" {
		return Account{}, fmt.Errorf("invalid account %q: want login@host[:port]", addr)
	}
	a := Account{Login: login, Host: hostPort, Port: 22}
	if host, port, err := net.SplitHostPort(hostPort); err == nil {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return Account{}, fmt.Errorf("invalid port in %q", addr)
		}
		a.Host, a.Port = host, n
	}
	if a.Host == "" {
		return Account{}, fmt.Errorf("invalid account %q: missing host", addr)
	}
	return a, nil
}

// Template is a named command stored in a button slot.
// The JSON keys match the historical config.json layout.
type Template struct {
	Label string `json:"text,omitempty"`
	Body  string `json:"command,omitempty"`
}

// IsEmpty reports whether the slot has no command body
func (t Template) IsEmpty() bool {
	return strings.TrimSpace(t.Body) == ""
}

// State is the root persisted document
type State struct {
	Accounts                    Accounts   `json:"accounts"`
	CustomButtons               []Template `json:"customButtons"`
	CustomButtonsLocal          []Template `json:"customButtonsLocal"`
	LocalCommanderCustomButtons []Template `json:"localCommanderCustomButtons"`
	LocalPaths                  []string   `json:"localPaths"`
}

// Capacities are the fixed slot counts of each button family
type Capacities struct {
	Remote    int
	Local     int
	Commander int
}

// Normalize pads or clamps every slot array to the given capacities and
// trims the bookmark list. Nil slices become empty ones.
func (s *State) Normalize(c Capacities) {
	if s.Accounts == nil {
		s.Accounts = Accounts{}
	}
	s.CustomButtons = fitSlots(s.CustomButtons, c.Remote)
	s.CustomButtonsLocal = fitSlots(s.CustomButtonsLocal, c.Local)
	s.LocalCommanderCustomButtons = fitSlots(s.LocalCommanderCustomButtons, c.Commander)
	if s.LocalPaths == nil {
		s.LocalPaths = []string{}
	}
	if len(s.LocalPaths) > MaxLocalPaths {
		s.LocalPaths = s.LocalPaths[:MaxLocalPaths]
	}
}

func fitSlots(slots []Template, capacity int) []Template {
	if capacity < 0 {
		capacity = 0
	}
	out := make([]Template, capacity)
	copy(out, slots)
	return out
}

// AddLocalPath inserts path at the front of the bookmark list unless it is
// already present. Returns false when the path was already bookmarked.
func (s *State) AddLocalPath(path string) bool {
	for _, p := range s.LocalPaths {
		if p == path {
			return false
		}
	}
	s.LocalPaths = append([]string{path}, s.LocalPaths...)
	if len(s.LocalPaths) > MaxLocalPaths {
		s.LocalPaths = s.LocalPaths[:MaxLocalPaths]
	}
	return true
}

// Clone returns a deep copy of the state
func (s *State) Clone() *State {
	out := &State{
		Accounts:                    append(Accounts{}, s.Accounts...),
		CustomButtons:               append([]Template{}, s.CustomButtons...),
		CustomButtonsLocal:          append([]Template{}, s.CustomButtonsLocal...),
		LocalCommanderCustomButtons: append([]Template{}, s.LocalCommanderCustomButtons...),
		LocalPaths:                  append([]string{}, s.LocalPaths...),
	}
	return out
}

// ClearPasswords blanks every stored account password
func (s *State) ClearPasswords() {
	for i := range s.Accounts {
		s.Accounts[i].Password = ""
	}
}
