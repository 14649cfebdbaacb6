package ferr

import (
	"net/http"
	"syscall"
)

// Errno maps a taxonomy Kind to the POSIX errno the translator returns to
// the kernel.
func Errno(kind Kind) syscall.Errno {
	switch kind {
	case NotFound:
		return syscall.ENOENT
	case Transport:
		return syscall.EIO
	case Shape:
		return syscall.EISDIR
	case NoCapacity:
		return syscall.EIO
	case BadRequest:
		return syscall.EINVAL
	case NetworkTransient:
		return syscall.EAGAIN
	default:
		return syscall.EIO
	}
}

// HTTPStatus maps a taxonomy Kind to the status code the metadata
// authority's HTTP handlers respond with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case BadRequest:
		return http.StatusBadRequest
	case Shape:
		return http.StatusBadRequest
	case NoCapacity:
		return http.StatusInternalServerError
	case NetworkTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromHTTPStatus is the agent-side inverse: translate a controller HTTP
// response status back into the FS error taxonomy.
func FromHTTPStatus(status int) Kind {
	switch status {
	case http.StatusNotFound:
		return NotFound
	case http.StatusBadRequest:
		return BadRequest
	case http.StatusServiceUnavailable:
		return NetworkTransient
	default:
		return Transport
	}
}
