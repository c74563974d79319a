package resolve

// baseStdlibNames are the top-level standard-library module names common to
// every supported Python 3 target. Version-specific additions and removals
// are applied on top by StdlibNames.
var baseStdlibNames = []string{
	"__future__", "_thread", "abc", "argparse", "array", "ast", "asyncio",
	"atexit", "base64", "bdb", "binascii", "bisect", "builtins", "bz2",
	"calendar", "cmath", "cmd", "code", "codecs", "codeop", "collections",
	"colorsys", "compileall", "concurrent", "configparser", "contextlib",
	"contextvars", "copy", "copyreg", "cProfile", "csv", "ctypes", "curses",
	"dataclasses", "datetime", "dbm", "decimal", "difflib", "dis", "doctest",
	"email", "encodings", "ensurepip", "enum", "errno", "faulthandler",
	"fcntl", "filecmp", "fileinput", "fnmatch", "fractions", "ftplib",
	"functools", "gc", "getopt", "getpass", "gettext", "glob", "grp", "gzip",
	"hashlib", "heapq", "hmac", "html", "http", "idlelib", "imaplib",
	"importlib", "inspect", "io", "ipaddress", "itertools", "json",
	"keyword", "linecache", "locale", "logging", "lzma", "mailbox", "marshal",
	"math", "mimetypes", "mmap", "modulefinder", "multiprocessing", "netrc",
	"numbers", "operator", "optparse", "os", "pathlib", "pdb", "pickle",
	"pickletools", "pkgutil", "platform", "plistlib", "poplib", "posixpath",
	"pprint", "profile", "pstats", "pty", "pwd", "py_compile", "pyclbr",
	"pydoc", "queue", "quopri", "random", "re", "readline", "reprlib",
	"resource", "rlcompleter", "runpy", "sched", "secrets", "select",
	"selectors", "shelve", "shlex", "shutil", "signal", "site", "smtplib",
	"socket", "socketserver", "sqlite3", "ssl", "stat", "statistics",
	"string", "stringprep", "struct", "subprocess", "symtable", "sys",
	"sysconfig", "syslog", "tabnanny", "tarfile", "tempfile", "termios",
	"test", "textwrap", "threading", "time", "timeit", "tkinter", "token",
	"tokenize", "trace", "traceback", "tracemalloc", "tty", "turtle",
	"types", "typing", "unicodedata", "unittest", "urllib", "uuid", "venv",
	"warnings", "wave", "weakref", "webbrowser", "wsgiref", "xml",
	"xmlrpc", "zipapp", "zipfile", "zipimport", "zlib",
}

// addedInMinor maps a 3.N minor version to the modules it introduced.
var addedInMinor = map[int][]string{
	9:  {"graphlib", "zoneinfo"},
	11: {"tomllib"},
}

// removedInMinor maps a 3.N minor version to the modules it removed.
var removedInMinor = map[int][]string{
	12: {"asynchat", "asyncore", "distutils", "imp", "smtpd"},
	13: {
		"aifc", "audioop", "cgi", "cgitb", "chunk", "crypt", "imghdr",
		"mailcap", "msilib", "nis", "nntplib", "ossaudiodev", "pipes",
		"sndhdr", "spwd", "sunau", "telnetlib", "uu", "xdrlib",
	},
}

// legacyNames are modules that existed before the earliest removal version
// tracked above; they are present unless removed by the target version.
var legacyNames = []string{
	"aifc", "asynchat", "asyncore", "audioop", "cgi", "cgitb", "chunk",
	"crypt", "distutils", "imghdr", "imp", "mailcap", "msilib", "nis",
	"nntplib", "ossaudiodev", "pipes", "smtpd", "sndhdr", "spwd", "sunau",
	"telnetlib", "uu", "xdrlib",
}

// StdlibNames returns the set of top-level standard-library module names for
// the Python 3.N target given by minor.
func StdlibNames(minor int) map[string]bool {
	names := make(map[string]bool, len(baseStdlibNames)+len(legacyNames))

	for _, name := range baseStdlibNames {
		names[name] = true
	}

	for _, name := range legacyNames {
		names[name] = true
	}

	for addedMinor, added := range addedInMinor {
		if minor >= addedMinor {
			for _, name := range added {
				names[name] = true
			}
		}
	}

	for removedMinor, removed := range removedInMinor {
		if minor >= removedMinor {
			for _, name := range removed {
				delete(names, name)
			}
		}
	}

	return names
}
