package server

import (
	"net"
	"strconv"
)

type HttpConfig struct {
	// Host is the interface to listen on
	Host string `conf:"host"`

	// Port is the tcp port, 0 picks a free port
	Port int `conf:"port"`

	// H2c enables http/2 over cleartext
	H2c bool `conf:"h2c"`
}

// Address returns the listen address in host:port form.
func (c HttpConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
