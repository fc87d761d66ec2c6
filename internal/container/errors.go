package container

import "github.com/wfexsgo/core/internal/wferrors"

var (
	errSecureWritableConflict = wferrors.NewContainerError("secure_exec combined with writable_containers is not permitted on Singularity", nil)
	errSecureExecUnavailable  = wferrors.NewContainerError("secure_exec requested on Singularity but neither userns nor FUSE user_allow_other is available", nil)
)
