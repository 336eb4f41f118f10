package dbconn

import (
	"net"
	"strconv"

	"github.com/go-ini/ini"
	"github.com/go-sql-driver/mysql"
)

const (
	defaultHost     = "127.0.0.1"
	defaultPort     = 3306
	defaultUsername = "root"
	defaultPassword = ""
	defaultDatabase = "test"
	defaultTLSMode  = "PREFERRED"
)

// ConfParams abstracts parameters loaded from a my.cnf style ini file. It
// provides defaults when the receiver is nil or a parameter is not defined.
type ConfParams struct {
	host, database, user, tlsMode string
	password                      *string
	port                          int
}

func (c *ConfParams) GetHost() string {
	if c == nil || c.host == "" {
		return defaultHost
	}
	return c.host
}

func (c *ConfParams) GetDatabase() string {
	if c == nil || c.database == "" {
		return defaultDatabase
	}
	return c.database
}

func (c *ConfParams) GetUser() string {
	if c == nil || c.user == "" {
		return defaultUsername
	}
	return c.user
}

func (c *ConfParams) GetPassword() string {
	if c == nil || c.password == nil {
		return defaultPassword
	}
	return *c.password
}

func (c *ConfParams) GetTLSMode() string {
	if c == nil || c.tlsMode == "" {
		return defaultTLSMode
	}
	return c.tlsMode
}

func (c *ConfParams) GetPort() int {
	if c == nil || c.port == 0 {
		return defaultPort
	}
	return c.port
}

// DSN formats the parameters as a go-sql-driver DSN.
func (c *ConfParams) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.GetUser()
	cfg.Passwd = c.GetPassword()
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.GetHost(), strconv.Itoa(c.GetPort()))
	cfg.DBName = c.GetDatabase()
	return cfg.FormatDSN()
}

// LoadConfParams loads the [client] section of an ini file. An empty path
// returns the defaults.
func LoadConfParams(confFilePath string) (*ConfParams, error) {
	confParams := &ConfParams{}
	if confFilePath == "" {
		return confParams, nil
	}
	creds, err := ini.Load(confFilePath)
	if err != nil {
		return nil, err
	}
	if creds.HasSection("client") {
		clientSection := creds.Section("client")
		confParams.host = clientSection.Key("host").String()
		confParams.database = clientSection.Key("database").String()
		confParams.user = clientSection.Key("user").String()
		confParams.tlsMode = clientSection.Key("tls-mode").String()
		confParams.port = clientSection.Key("port").MustInt()

		if clientSection.HasKey("password") {
			pw := clientSection.Key("password").String()
			confParams.password = &pw
		}
	}
	return confParams, nil
}
