// Configuration Input and Output
//
// Copyright (c) 2024, 2025  Quy Nguyen
//
// This file is part of the DeepRL Connect-4 agent platform.
//
// This program is free software: you can redistribute it and/or
// modify it under the terms of the GNU Affero General Public License,
// version 3, as published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public
// License, version 3, along with this program. If not, see
// <http://www.gnu.org/licenses/>

package conf

import (
	"io"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Open reads a configuration file, layered over the defaults
func Open(path string) (*Conf, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	c := Default()
	if _, err := toml.NewDecoder(file).Decode(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Dump serialises the configuration into a writer
func (c *Conf) Dump(wr io.Writer) error {
	return toml.NewEncoder(wr).Encode(c)
}

// Env applies deployment overrides from the environment.  Only the
// knobs an operator actually changes between environments are
// exposed; everything else stays in the file.
func (c *Conf) Env() {
	if v, ok := os.LookupEnv("C4_DB"); ok {
		c.Database.File = v
	}
	if v, ok := os.LookupEnv("C4_PORT"); ok {
		if port, err := strconv.ParseUint(v, 10, 16); err == nil {
			c.Web.Port = uint(port)
		}
	}
	if v, ok := os.LookupEnv("C4_ADMIN_TOKEN"); ok {
		c.Web.AdminToken = v
	}
}
